package domain

// RiskLevel is the rollup level of one risk cluster.
type RiskLevel string

const (
	RiskLevelOK          RiskLevel = "OK"
	RiskLevelNeedsReview RiskLevel = "NEEDS_REVIEW"
	RiskLevelMedium      RiskLevel = "MEDIUM"
	RiskLevelHigh        RiskLevel = "HIGH"
)

// RiskDriver is one finding ranked by its score weight, with a
// human-readable reason (the rule's recommendation, or a placeholder).
type RiskDriver struct {
	FindingID      string           `json:"findingId"`
	RuleID         string           `json:"ruleId"`
	ClauseCategory string           `json:"clauseCategory"`
	Status         ComplianceStatus `json:"status"`
	Severity       Severity         `json:"severity,omitempty"`
	Weight         int              `json:"weight"`
	Overridden     bool             `json:"overridden"`
	Reason         string           `json:"reason"`
}

// RiskCluster is the per-category rollup of findings for a (version, policy)
// pair. Derived on read, never persisted.
type RiskCluster struct {
	Category        RiskCategory `json:"category"`
	Level           RiskLevel    `json:"level"`
	ViolationCount  int          `json:"violationCount"`
	UnclearCount    int          `json:"unclearCount"`
	OverriddenCount int          `json:"overriddenCount"`

	// MaxSeverity is the most severe severity present among violations and
	// unclear findings in the category, empty when none.
	MaxSeverity Severity `json:"maxSeverity,omitempty"`

	// TotalWeight sums the weights of non-overridden violations only.
	TotalWeight int `json:"totalWeight"`

	// TopDrivers holds up to three drivers, heaviest first.
	TopDrivers []RiskDriver `json:"topDrivers,omitempty"`
}

// RiskAssessment is the aggregator's full output for a (version, policy).
type RiskAssessment struct {
	VersionID string `json:"versionId"`
	PolicyID  string `json:"policyId"`

	RawScore int `json:"rawScore"`

	// EffectiveScore is the raw score plus approved-exception credits,
	// clamped to 100. Always >= RawScore.
	EffectiveScore int `json:"effectiveScore"`

	OverallStatus RecordStatus `json:"overallStatus"`

	// Clusters always holds the five fixed categories in canonical order.
	Clusters []RiskCluster `json:"clusters"`

	// TopDrivers is the flat, weight-descending driver list across all
	// categories (uncapped; callers cap for display).
	TopDrivers []RiskDriver `json:"topDrivers,omitempty"`
}

// AnalysisSnapshot is the cacheable summary of an evaluated (version, policy)
// pair, used to answer repeat reads without replaying the pipeline.
type AnalysisSnapshot struct {
	RawScore       int          `json:"rawScore"`
	EffectiveScore int          `json:"effectiveScore"`
	Status         RecordStatus `json:"status"`
	FindingCount   int          `json:"findingCount"`
	EvaluatedAt    string       `json:"evaluatedAt"`
}
