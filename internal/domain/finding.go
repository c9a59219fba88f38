package domain

import "time"

// ComplianceStatus is the per-rule verdict of an evaluation.
type ComplianceStatus string

const (
	StatusCompliant     ComplianceStatus = "COMPLIANT"
	StatusViolation     ComplianceStatus = "VIOLATION"
	StatusUnclear       ComplianceStatus = "UNCLEAR"
	StatusNotApplicable ComplianceStatus = "NOT_APPLICABLE"
)

// UnclearReasonLowConfidence marks findings whose evidence confidence fell
// below the evaluation threshold. Such findings never contribute to the score.
const UnclearReasonLowConfidence = "LOW_CONFIDENCE"

// Finding is the compliance verdict for one rule against one contract
// version. Exactly one finding exists per (rule, version) at any time; each
// re-evaluation replaces the full set for the (version, policy) pair.
type Finding struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspaceId"`
	VersionID   string `json:"versionId"`
	PolicyID    string `json:"policyId"`

	RuleID         string `json:"ruleId"`
	ClauseCategory string `json:"clauseCategory"`

	Status         ComplianceStatus `json:"status"`
	Severity       Severity         `json:"severity,omitempty"`
	RiskCategory   RiskCategory     `json:"riskCategory,omitempty"`
	Recommendation string           `json:"recommendation,omitempty"`

	// Weight is copied from the rule so aggregation and diffing do not need
	// the rule set of a historical version.
	Weight int `json:"weight"`

	Value      any     `json:"value,omitempty"`
	Excerpt    string  `json:"excerpt,omitempty"`
	Confidence float64 `json:"confidence"`

	// UnclearReason is UnclearReasonLowConfidence when the evidence fell
	// below the confidence threshold, empty otherwise.
	UnclearReason string `json:"unclearReason,omitempty"`

	EvaluatedAt time.Time `json:"evaluatedAt,omitempty"`
}

// Key returns the canonical join key: rule id, falling back to clause
// category. Matches Rule.Key.
func (f *Finding) Key() string {
	if f.RuleID != "" {
		return f.RuleID
	}
	return f.ClauseCategory
}

// CountsAgainstScore reports whether the finding can carry a deduction or an
// override credit. Only violations and unclear findings do.
func (f *Finding) CountsAgainstScore() bool {
	return f.Status == StatusViolation || f.Status == StatusUnclear
}
