package domain

import "fmt"

// MissingEvidenceError signals that a policy evaluation was requested for a
// version with no evidence at all. Callers must branch on it ("run extraction
// first") instead of receiving a score that looks like a clean result.
type MissingEvidenceError struct {
	VersionID string
	PolicyID  string
}

func (e *MissingEvidenceError) Error() string {
	return fmt.Sprintf("no evidence for version %s (policy %s); run extraction first", e.VersionID, e.PolicyID)
}

// MissingAnalysisError signals that a version lacks a compliance record for
// the requested policy, so aggregation or comparison cannot proceed.
type MissingAnalysisError struct {
	VersionID string
}

func (e *MissingAnalysisError) Error() string {
	return fmt.Sprintf("missing analysis for version %s", e.VersionID)
}
