package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ValueKind tags the comparison mode a loosely-typed value was coerced into.
type ValueKind int

const (
	// NumericComparable means the value coerced to a number.
	NumericComparable ValueKind = iota

	// StringSetComparable means the value coerced to one or more strings.
	StringSetComparable

	// Unparseable means no coercion applied. Comparisons degrade to UNCLEAR.
	Unparseable
)

// Comparable is the tagged union produced by coercion. MIN_VALUE, MAX_VALUE
// and ALLOWED_VALUES all compare through it instead of type-switching inline.
type Comparable struct {
	Kind    ValueKind
	Number  float64
	Strings []string
}

// numericFields are the object fields tried, in order, when a value arrives
// as a JSON object instead of a bare number.
var numericFields = []string{"value", "amount", "paymentDays", "noticeDays"}

// CoerceNumber coerces a loosely-typed value to a number. Tries a direct
// number, then a numeric string, then the common object fields.
func CoerceNumber(v any) Comparable {
	switch n := v.(type) {
	case float64:
		return Comparable{Kind: NumericComparable, Number: n}
	case float32:
		return Comparable{Kind: NumericComparable, Number: float64(n)}
	case int:
		return Comparable{Kind: NumericComparable, Number: float64(n)}
	case int32:
		return Comparable{Kind: NumericComparable, Number: float64(n)}
	case int64:
		return Comparable{Kind: NumericComparable, Number: float64(n)}
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return Comparable{Kind: NumericComparable, Number: f}
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return Comparable{Kind: NumericComparable, Number: f}
		}
	case map[string]any:
		for _, field := range numericFields {
			inner, ok := n[field]
			if !ok || inner == nil {
				continue
			}
			if c := CoerceNumber(inner); c.Kind == NumericComparable {
				return c
			}
		}
	}
	return Comparable{Kind: Unparseable}
}

// CoerceString coerces a value to a single string for set matching.
func CoerceString(v any) Comparable {
	switch s := v.(type) {
	case string:
		return Comparable{Kind: StringSetComparable, Strings: []string{s}}
	case float64:
		return Comparable{Kind: StringSetComparable, Strings: []string{strconv.FormatFloat(s, 'f', -1, 64)}}
	case int:
		return Comparable{Kind: StringSetComparable, Strings: []string{strconv.Itoa(s)}}
	case bool:
		return Comparable{Kind: StringSetComparable, Strings: []string{strconv.FormatBool(s)}}
	case fmt.Stringer:
		return Comparable{Kind: StringSetComparable, Strings: []string{s.String()}}
	}
	return Comparable{Kind: Unparseable}
}

// CoerceStringSet coerces an expected-values list to a string set. Elements
// that are not string-like are dropped.
func CoerceStringSet(v any) Comparable {
	switch list := v.(type) {
	case []string:
		return Comparable{Kind: StringSetComparable, Strings: list}
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if c := CoerceString(item); c.Kind == StringSetComparable {
				out = append(out, c.Strings...)
			}
		}
		return Comparable{Kind: StringSetComparable, Strings: out}
	case nil:
		return Comparable{Kind: StringSetComparable}
	}
	return Comparable{Kind: Unparseable}
}

// MatchesAny reports whether the single coerced string matches any element of
// the allowed set, case-insensitively.
func (c Comparable) MatchesAny(allowed Comparable) bool {
	if c.Kind != StringSetComparable || len(c.Strings) == 0 {
		return false
	}
	for _, want := range allowed.Strings {
		if strings.EqualFold(c.Strings[0], want) {
			return true
		}
	}
	return false
}
