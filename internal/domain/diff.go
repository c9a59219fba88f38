package domain

// ChangeType classifies how a rule's clause changed between two versions.
type ChangeType string

const (
	ChangeAdded     ChangeType = "ADDED"
	ChangeRemoved   ChangeType = "REMOVED"
	ChangeModified  ChangeType = "MODIFIED"
	ChangeUnchanged ChangeType = "UNCHANGED"
)

// DeltaLabel summarizes the direction of the overall score movement.
type DeltaLabel string

const (
	DeltaImproved  DeltaLabel = "IMPROVED"
	DeltaWorsened  DeltaLabel = "WORSENED"
	DeltaUnchanged DeltaLabel = "UNCHANGED"
)

// FindingSnapshot is the diff-relevant slice of a finding on one side of a
// comparison.
type FindingSnapshot struct {
	RuleID         string           `json:"ruleId"`
	ClauseCategory string           `json:"clauseCategory"`
	Status         ComplianceStatus `json:"status"`
	Severity       Severity         `json:"severity,omitempty"`
	Weight         int              `json:"weight"`
	Overridden     bool             `json:"overridden"`
	Value          any              `json:"value,omitempty"`
	Excerpt        string           `json:"excerpt,omitempty"`
	Confidence     float64          `json:"confidence"`
}

// ChangeItem is the comparison result for one rule key present in either
// version.
type ChangeItem struct {
	RuleKey        string     `json:"ruleKey"`
	ClauseCategory string     `json:"clauseCategory"`
	Type           ChangeType `json:"type"`

	From *FindingSnapshot `json:"from,omitempty"`
	To   *FindingSnapshot `json:"to,omitempty"`

	// DeltaImpact is positive when the change reduced risk, negative when it
	// increased risk.
	DeltaImpact int `json:"deltaImpact"`

	Why string `json:"why,omitempty"`
}

// ScoreDelta is the overall score movement between the two versions.
type ScoreDelta struct {
	Raw       int        `json:"raw"`
	Effective int        `json:"effective"`
	Label     DeltaLabel `json:"label"`
}

// VersionComparison is the differ's full output.
type VersionComparison struct {
	PolicyID      string `json:"policyId"`
	FromVersionID string `json:"fromVersionId"`
	ToVersionID   string `json:"toVersionId"`

	Changes []ChangeItem `json:"changes"`

	// TopDrivers holds up to five changes ranked by |DeltaImpact|, ties kept
	// in original change order.
	TopDrivers []ChangeItem `json:"topDrivers,omitempty"`

	Delta ScoreDelta `json:"delta"`
}
