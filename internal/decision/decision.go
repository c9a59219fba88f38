// Package decision derives the go/no-go deal outcome from aggregated risk.
package decision

import (
	"github.com/opensource-legal/covenant/internal/domain"
)

// driverCap limits the drivers carried on a decision and its rationale.
const driverCap = 5

// Input bundles everything a decision preview is derived from.
type Input struct {
	Assessment *domain.RiskAssessment
	Findings   []*domain.Finding
	Overridden map[string]bool
	Exceptions domain.ExceptionCounts
}

// Engine computes deal-decision previews. It is stateless; finalization is a
// persistence concern handled by the repository.
type Engine struct {
	cfg domain.EngineConfig
}

// NewEngine creates a decision engine with the given scoring constants.
func NewEngine(cfg domain.EngineConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Compute derives the outcome, counts, top drivers and rationale for one
// (version, policy) pair. The result is a DRAFT preview; identical inputs
// produce a byte-identical rationale.
func (e *Engine) Compute(in Input) *domain.DealDecision {
	counts := domain.DecisionCounts{
		OpenExceptions:     in.Exceptions.Open,
		ApprovedExceptions: in.Exceptions.Approved,
	}

	hasCritical := false
	hasViolation := false
	hasUnclear := false

	for _, f := range in.Findings {
		switch f.Status {
		case domain.StatusViolation:
			counts.Violations++
			if in.Overridden[f.ID] {
				counts.OverriddenViolations++
				continue
			}
			hasViolation = true
			if f.Severity == domain.SeverityCritical {
				hasCritical = true
			}
		case domain.StatusUnclear:
			counts.Unclear++
			if !in.Overridden[f.ID] {
				hasUnclear = true
			}
		}
	}

	// First match wins.
	var outcome domain.Outcome
	switch {
	case hasCritical:
		outcome = domain.OutcomeNoGo
	case in.Assessment.EffectiveScore < e.cfg.NonCompliantEffective:
		outcome = domain.OutcomeNoGo
	case hasViolation:
		outcome = domain.OutcomeNeedsReview
	case hasUnclear:
		outcome = domain.OutcomeNeedsReview
	case in.Exceptions.Open > 0:
		outcome = domain.OutcomeNeedsReview
	default:
		outcome = domain.OutcomeGo
	}

	drivers := in.Assessment.TopDrivers
	if len(drivers) > driverCap {
		drivers = drivers[:driverCap]
	}

	dec := &domain.DealDecision{
		VersionID:      in.Assessment.VersionID,
		PolicyID:       in.Assessment.PolicyID,
		Outcome:        outcome,
		State:          domain.DecisionDraft,
		EffectiveScore: in.Assessment.EffectiveScore,
		Counts:         counts,
		TopDrivers:     drivers,
	}
	dec.Rationale = renderRationale(in.Assessment, dec)

	return dec
}
