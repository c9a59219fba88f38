package diff

import (
	"encoding/json"

	"github.com/gowebpki/jcs"
)

// canonicalJSON serializes a loosely-typed value to RFC 8785 canonical JSON
// (object keys sorted), so structurally equal values compare equal regardless
// of key order.
func canonicalJSON(v any) (string, bool) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", false
	}
	return string(canonical), true
}

// canonicalEqual reports deep structural equality of two values. Values that
// cannot be serialized only compare equal to themselves being absent.
func canonicalEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	ca, okA := canonicalJSON(a)
	cb, okB := canonicalJSON(b)
	if !okA || !okB {
		return false
	}
	return ca == cb
}
