package domain

import "time"

// ExceptionStatus is the lifecycle state of an exception request.
type ExceptionStatus string

const (
	ExceptionRequested ExceptionStatus = "REQUESTED"
	ExceptionApproved  ExceptionStatus = "APPROVED"
	ExceptionRejected  ExceptionStatus = "REJECTED"
	ExceptionWithdrawn ExceptionStatus = "WITHDRAWN"
)

// Exception is an approval that neutralizes one finding's score impact.
// Only APPROVED exceptions feed scoring; the engine reads them, it never
// mutates them.
type Exception struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspaceId"`
	FindingID   string `json:"findingId"`
	VersionID   string `json:"versionId"`
	PolicyID    string `json:"policyId"`

	Status        ExceptionStatus `json:"status"`
	Justification string          `json:"justification,omitempty"`

	RequestedAt time.Time `json:"requestedAt"`
	DecidedAt   time.Time `json:"decidedAt,omitempty"`
}

// Active reports whether the exception still awaits or holds a decision that
// matters for scoring and decisions.
func (e *Exception) Active() bool {
	return e.Status == ExceptionRequested || e.Status == ExceptionApproved
}

// ExceptionCounts summarizes exception state for a (version, policy) pair.
type ExceptionCounts struct {
	Open     int `json:"open"`
	Approved int `json:"approved"`
}
