package domain

import "time"

// MaxExcerptLen caps the stored excerpt of an evidence item.
const MaxExcerptLen = 700

// EvidenceItem is one neutral clause extraction for a contract version.
// At most one item exists per clause category per version. The engine treats
// evidence as read-only input; producing it (PDF parsing, model calls) is an
// upstream concern.
type EvidenceItem struct {
	ID             string `json:"id"`
	WorkspaceID    string `json:"workspaceId"`
	VersionID      string `json:"versionId"`
	ClauseCategory string `json:"clauseCategory"`

	// Value is the extracted clause value. Loosely typed JSON: a number,
	// a string, or an object with fields like noticeDays.
	Value any `json:"value,omitempty"`

	// Excerpt is the supporting quote from the contract, capped at
	// MaxExcerptLen characters.
	Excerpt string `json:"excerpt,omitempty"`

	// Confidence is the extractor's confidence in [0,1].
	Confidence float64 `json:"confidence"`

	IngestedAt time.Time `json:"ingestedAt,omitempty"`
}

// Present reports whether the clause was found at all. Existence of the item
// is the signal; the value may still be null.
func (e *EvidenceItem) Present() bool {
	return e != nil
}

// EvidenceSet maps clause category to the single evidence item for that
// category within one contract version.
type EvidenceSet map[string]*EvidenceItem

// Resolve returns the evidence for a clause category, or nil when the clause
// was not extracted.
func (s EvidenceSet) Resolve(clauseCategory string) *EvidenceItem {
	return s[clauseCategory]
}

// NewEvidenceSet indexes evidence items by clause category. Later items win
// on duplicate categories, matching upsert-on-ingest semantics.
func NewEvidenceSet(items []*EvidenceItem) EvidenceSet {
	set := make(EvidenceSet, len(items))
	for _, item := range items {
		set[item.ClauseCategory] = item
	}
	return set
}
