package domain

import "time"

// Outcome is the go/no-go result for a deal.
type Outcome string

const (
	OutcomeGo          Outcome = "GO"
	OutcomeNeedsReview Outcome = "NEEDS_REVIEW"
	OutcomeNoGo        Outcome = "NO_GO"
)

// DecisionState is the lifecycle state of a deal decision. FINAL is terminal.
type DecisionState string

const (
	DecisionDraft DecisionState = "DRAFT"
	DecisionFinal DecisionState = "FINAL"
)

// DecisionCounts summarizes the inputs a decision was derived from.
type DecisionCounts struct {
	Violations           int `json:"violations"`
	OverriddenViolations int `json:"overriddenViolations"`
	Unclear              int `json:"unclear"`
	OpenExceptions       int `json:"openExceptions"`
	ApprovedExceptions   int `json:"approvedExceptions"`
}

// DealDecision is the go/no-go outcome for one (version, policy) pair.
// Previews are DRAFT; once finalized the record is immutable and later
// previews never overwrite it.
type DealDecision struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspaceId"`
	VersionID   string `json:"versionId"`
	PolicyID    string `json:"policyId"`

	Outcome Outcome       `json:"outcome"`
	State   DecisionState `json:"state"`

	EffectiveScore int            `json:"effectiveScore"`
	Counts         DecisionCounts `json:"counts"`

	// TopDrivers holds up to five drivers, heaviest first.
	TopDrivers []RiskDriver `json:"topDrivers,omitempty"`

	// Rationale is deterministic markdown: byte-identical for identical
	// inputs. No timestamps, no randomness.
	Rationale string `json:"rationale"`

	ComputedAt  time.Time `json:"computedAt,omitempty"`
	FinalizedAt time.Time `json:"finalizedAt,omitempty"`
}

// Final reports whether the decision has been finalized.
func (d *DealDecision) Final() bool { return d.State == DecisionFinal }
