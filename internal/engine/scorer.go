package engine

import (
	"github.com/opensource-legal/covenant/internal/domain"
)

// ScoreResult is the scorer's output for one (version, policy) evaluation:
// the full replacement finding set, the raw score and the tri-state status.
type ScoreResult struct {
	Findings []*domain.Finding   `json:"findings"`
	RawScore int                 `json:"rawScore"`
	Status   domain.RecordStatus `json:"status"`
}

// Scorer runs the evaluator over all rules of a policy and aggregates the
// deductions into a 0-100 score.
type Scorer struct {
	cfg  domain.EngineConfig
	eval *Evaluator
	expr *ExpressionEngine
}

// NewScorer creates a scorer. The expression engine may be nil, in which case
// EXPRESSION rules evaluate to NOT_APPLICABLE.
func NewScorer(cfg domain.EngineConfig, expr *ExpressionEngine) *Scorer {
	return &Scorer{
		cfg:  cfg,
		eval: NewEvaluator(cfg),
		expr: expr,
	}
}

// ScorePolicy evaluates all rules of a policy against the evidence set for
// one contract version. Returns MissingEvidenceError when the version has no
// evidence at all but the policy expects evidence-backed evaluation; a
// zero-rule policy scores 100 trivially without touching evidence.
func (s *Scorer) ScorePolicy(versionID, policyID string, rules []*domain.Rule, evidence domain.EvidenceSet) (*ScoreResult, error) {
	if len(rules) == 0 {
		return &ScoreResult{
			Findings: []*domain.Finding{},
			RawScore: s.cfg.MaxScore,
			Status:   s.status(s.cfg.MaxScore),
		}, nil
	}

	if len(evidence) == 0 {
		return nil, &domain.MissingEvidenceError{VersionID: versionID, PolicyID: policyID}
	}

	findings := make([]*domain.Finding, 0, len(rules))
	totalDeduction := 0
	critical := false

	for _, rule := range rules {
		ev := evidence.Resolve(rule.ClauseCategory)

		var res Result
		switch {
		case ev == nil && rule.Type != domain.RuleRequired:
			// Nothing extracted and nothing demanded: the rule does not apply.
			res = Result{Status: domain.StatusNotApplicable}
		case rule.Type == domain.RuleExpression:
			res = s.evaluateExpression(rule, ev)
		default:
			res = s.eval.Evaluate(rule, ev)
		}

		totalDeduction += res.Deduction
		if res.IsCritical {
			critical = true
		}

		findings = append(findings, s.finding(versionID, policyID, rule, ev, res))
	}

	score := s.cfg.MaxScore - totalDeduction
	if score < 0 {
		score = 0
	}
	if critical && score > s.cfg.CriticalCap {
		score = s.cfg.CriticalCap
	}

	return &ScoreResult{
		Findings: findings,
		RawScore: score,
		Status:   s.status(score),
	}, nil
}

func (s *Scorer) evaluateExpression(rule *domain.Rule, ev *domain.EvidenceItem) Result {
	if s.expr == nil {
		return Result{Status: domain.StatusNotApplicable}
	}
	if ev.Confidence < s.cfg.RequiredConfidence {
		return Result{Status: domain.StatusUnclear}
	}

	compliant, err := s.expr.Evaluate(rule.ID, ev)
	if err != nil {
		// Evaluation errors degrade like coercion failures, never abort the run.
		return Result{Status: domain.StatusUnclear}
	}
	if compliant {
		return Result{Status: domain.StatusCompliant}
	}
	return Result{
		Status:     domain.StatusViolation,
		Deduction:  rule.Weight,
		IsCritical: rule.Severity == domain.SeverityCritical,
	}
}

func (s *Scorer) finding(versionID, policyID string, rule *domain.Rule, ev *domain.EvidenceItem, res Result) *domain.Finding {
	f := &domain.Finding{
		VersionID:      versionID,
		PolicyID:       policyID,
		RuleID:         rule.ID,
		ClauseCategory: rule.ClauseCategory,
		Status:         res.Status,
		Severity:       rule.Severity,
		RiskCategory:   rule.RiskCategory,
		Recommendation: rule.Recommendation,
		Weight:         rule.Weight,
	}

	if ev != nil {
		f.Value = ev.Value
		f.Excerpt = ev.Excerpt
		f.Confidence = ev.Confidence

		// The low-confidence tag is set independent of rule type so callers
		// can tell degraded analysis from clean compliance.
		if ev.Confidence < s.cfg.RequiredConfidence {
			f.UnclearReason = domain.UnclearReasonLowConfidence
		}
	}

	return f
}

func (s *Scorer) status(score int) domain.RecordStatus {
	switch {
	case score >= s.cfg.CompliantMin:
		return domain.RecordCompliant
	case score >= s.cfg.ReviewMin:
		return domain.RecordNeedsReview
	default:
		return domain.RecordNonCompliant
	}
}
