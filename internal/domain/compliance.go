package domain

import "time"

// RecordStatus is the tri-state compliance status of a (version, policy)
// pair, derived from the raw score.
type RecordStatus string

const (
	RecordCompliant    RecordStatus = "COMPLIANT"
	RecordNeedsReview  RecordStatus = "NEEDS_REVIEW"
	RecordNonCompliant RecordStatus = "NON_COMPLIANT"
)

// ComplianceRecord is the scored outcome of evaluating one policy against one
// contract version. Recomputed wholesale on every evaluation, never patched.
type ComplianceRecord struct {
	WorkspaceID string `json:"workspaceId"`
	VersionID   string `json:"versionId"`
	PolicyID    string `json:"policyId"`

	// RawScore is the 0-100 score before exception credits.
	RawScore int `json:"rawScore"`

	Status RecordStatus `json:"status"`

	EvaluatedAt time.Time `json:"evaluatedAt"`
}
