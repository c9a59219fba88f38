// Package engine implements the compliance rule evaluator and policy scorer.
package engine

import (
	"github.com/opensource-legal/covenant/internal/domain"
)

// Result is the output of evaluating one rule against its resolved evidence.
type Result struct {
	Status     domain.ComplianceStatus `json:"status"`
	Deduction  int                     `json:"deduction"`
	IsCritical bool                    `json:"isCritical"`
}

// Evaluator evaluates a single rule against a single resolved evidence item.
// Thresholds are injected, not hardcoded, so policy strictness can vary per
// deployment.
type Evaluator struct {
	cfg domain.EngineConfig
}

// NewEvaluator creates an evaluator with the given scoring constants.
func NewEvaluator(cfg domain.EngineConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Evaluate applies one rule to its evidence. A nil evidence item means the
// clause was not extracted for this version.
func (e *Evaluator) Evaluate(rule *domain.Rule, ev *domain.EvidenceItem) Result {
	var res Result

	switch rule.Type {
	case domain.RuleRequired:
		res = e.evaluateRequired(rule, ev)
	case domain.RuleForbidden:
		res = e.evaluateForbidden(rule, ev)
	case domain.RuleMinValue, domain.RuleMaxValue:
		res = e.evaluateBound(rule, ev)
	case domain.RuleAllowedValues:
		res = e.evaluateAllowed(rule, ev)
	default:
		// Unknown rule types never fail a contract.
		res = Result{Status: domain.StatusNotApplicable}
	}

	res.IsCritical = res.Status == domain.StatusViolation && rule.Severity == domain.SeverityCritical
	return res
}

func (e *Evaluator) evaluateRequired(rule *domain.Rule, ev *domain.EvidenceItem) Result {
	if ev == nil || ev.Confidence < e.cfg.RequiredConfidence {
		return Result{Status: domain.StatusViolation, Deduction: rule.Weight}
	}
	return Result{Status: domain.StatusCompliant}
}

func (e *Evaluator) evaluateForbidden(rule *domain.Rule, ev *domain.EvidenceItem) Result {
	if ev == nil {
		return Result{Status: domain.StatusNotApplicable}
	}
	if ev.Confidence >= e.cfg.ForbiddenConfidence {
		return Result{Status: domain.StatusViolation, Deduction: rule.Weight}
	}
	// Present but below the forbidden threshold: not enough signal to flag.
	return Result{Status: domain.StatusCompliant}
}

func (e *Evaluator) evaluateBound(rule *domain.Rule, ev *domain.EvidenceItem) Result {
	if ev == nil {
		return Result{Status: domain.StatusViolation, Deduction: rule.Weight}
	}
	if ev.Value == nil || ev.Confidence < e.cfg.RequiredConfidence {
		return Result{Status: domain.StatusUnclear}
	}

	found := CoerceNumber(ev.Value)
	want := CoerceNumber(rule.ExpectedValue)
	if found.Kind != NumericComparable || want.Kind != NumericComparable {
		return Result{Status: domain.StatusUnclear}
	}

	ok := found.Number >= want.Number
	if rule.Type == domain.RuleMaxValue {
		ok = found.Number <= want.Number
	}
	if ok {
		return Result{Status: domain.StatusCompliant}
	}
	return Result{Status: domain.StatusViolation, Deduction: rule.Weight}
}

func (e *Evaluator) evaluateAllowed(rule *domain.Rule, ev *domain.EvidenceItem) Result {
	if ev == nil {
		return Result{Status: domain.StatusViolation, Deduction: rule.Weight}
	}
	if ev.Value == nil || ev.Confidence < e.cfg.RequiredConfidence {
		return Result{Status: domain.StatusUnclear}
	}

	allowed := CoerceStringSet(rule.ExpectedValue)
	if allowed.Kind != StringSetComparable || len(allowed.Strings) == 0 {
		// An empty or absent allow-list constrains nothing.
		return Result{Status: domain.StatusCompliant}
	}

	found := CoerceString(ev.Value)
	if found.Kind != StringSetComparable {
		return Result{Status: domain.StatusUnclear}
	}

	if found.MatchesAny(allowed) {
		return Result{Status: domain.StatusCompliant}
	}
	return Result{Status: domain.StatusViolation, Deduction: rule.Weight}
}
