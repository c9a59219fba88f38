package engine

import (
	"testing"

	"github.com/opensource-legal/covenant/internal/domain"
)

func exprRule(id, expression string) *domain.Rule {
	return &domain.Rule{
		ID:             id,
		ClauseCategory: "payment_terms",
		Type:           domain.RuleExpression,
		Expression:     expression,
		Weight:         10,
		Enabled:        true,
	}
}

func TestExpressionEngine(t *testing.T) {
	eng, err := NewExpressionEngine()
	if err != nil {
		t.Fatalf("NewExpressionEngine failed: %v", err)
	}

	t.Run("ValidateRule", func(t *testing.T) {
		if err := eng.ValidateRule(exprRule("ok", "present && confidence >= 0.8")); err != nil {
			t.Errorf("expected valid expression, got %v", err)
		}
		if err := eng.ValidateRule(exprRule("bad", "value +")); err == nil {
			t.Error("expected error for malformed expression")
		}
		if err := eng.ValidateRule(exprRule("nonbool", "'hello'")); err == nil {
			t.Error("expected error for non-bool expression")
		}
		if err := eng.ValidateRule(exprRule("unknown-var", "counterparty == 'x'")); err == nil {
			t.Error("expected error for unknown variable")
		}
		if err := eng.ValidateRule(nil); err == nil {
			t.Error("expected error for nil rule")
		}
	})

	t.Run("ValidateDoesNotLoad", func(t *testing.T) {
		if err := eng.ValidateRule(exprRule("validated-only", "present")); err != nil {
			t.Fatalf("ValidateRule failed: %v", err)
		}
		if _, err := eng.Evaluate("validated-only", nil); err == nil {
			t.Error("expected evaluation error for a rule that was only validated")
		}
	})

	t.Run("LoadAndEvaluate", func(t *testing.T) {
		if err := eng.LoadRule(exprRule("conf-check", "present && confidence >= 0.8")); err != nil {
			t.Fatalf("LoadRule failed: %v", err)
		}

		ok, err := eng.Evaluate("conf-check", &domain.EvidenceItem{
			ClauseCategory: "payment_terms",
			Confidence:     0.9,
		})
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if !ok {
			t.Error("expected compliant for confidence 0.9")
		}

		ok, err = eng.Evaluate("conf-check", &domain.EvidenceItem{
			ClauseCategory: "payment_terms",
			Confidence:     0.5,
		})
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if ok {
			t.Error("expected non-compliant for confidence 0.5")
		}
	})

	t.Run("NilEvidenceActivation", func(t *testing.T) {
		if err := eng.LoadRule(exprRule("presence", "present")); err != nil {
			t.Fatalf("LoadRule failed: %v", err)
		}

		ok, err := eng.Evaluate("presence", nil)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if ok {
			t.Error("expected present=false for nil evidence")
		}
	})

	t.Run("DynValueComparison", func(t *testing.T) {
		if err := eng.LoadRule(exprRule("net-terms", "present && value <= 60.0")); err != nil {
			t.Fatalf("LoadRule failed: %v", err)
		}

		ok, err := eng.Evaluate("net-terms", &domain.EvidenceItem{
			ClauseCategory: "payment_terms",
			Value:          30.0,
			Confidence:     0.9,
		})
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if !ok {
			t.Error("expected 30 <= 60 to be compliant")
		}
	})

	t.Run("RuntimeErrorSurfaces", func(t *testing.T) {
		// Compiles against dyn but fails at runtime for a string value.
		if err := eng.LoadRule(exprRule("type-clash", "present && value > 10.0")); err != nil {
			t.Fatalf("LoadRule failed: %v", err)
		}

		_, err := eng.Evaluate("type-clash", &domain.EvidenceItem{
			ClauseCategory: "payment_terms",
			Value:          "ninety",
			Confidence:     0.9,
		})
		if err == nil {
			t.Error("expected runtime evaluation error for type clash")
		}
	})

	t.Run("UnknownRule", func(t *testing.T) {
		if _, err := eng.Evaluate("never-loaded", nil); err == nil {
			t.Error("expected error for unknown rule")
		}
	})
}

func TestExpressionEngineReload(t *testing.T) {
	eng, err := NewExpressionEngine()
	if err != nil {
		t.Fatalf("NewExpressionEngine failed: %v", err)
	}

	t.Run("LoadRulesSkipsNonExpression", func(t *testing.T) {
		rules := []*domain.Rule{
			exprRule("e-1", "present"),
			{ID: "req-1", ClauseCategory: "x", Type: domain.RuleRequired, Weight: 10, Enabled: true},
			func() *domain.Rule {
				r := exprRule("e-disabled", "present")
				r.Enabled = false
				return r
			}(),
		}

		if err := eng.LoadRules(rules); err != nil {
			t.Fatalf("LoadRules failed: %v", err)
		}
		if eng.Count() != 1 {
			t.Errorf("expected 1 compiled expression, got %d", eng.Count())
		}
	})

	t.Run("ReloadReplacesSet", func(t *testing.T) {
		if err := eng.ReloadRules([]*domain.Rule{exprRule("e-2", "confidence > 0.5")}); err != nil {
			t.Fatalf("ReloadRules failed: %v", err)
		}
		if eng.Count() != 1 {
			t.Errorf("expected 1 compiled expression after reload, got %d", eng.Count())
		}
		if _, err := eng.Evaluate("e-1", nil); err == nil {
			t.Error("expected e-1 to be dropped by reload")
		}
	})

	t.Run("ReloadKeepsOldSetOnError", func(t *testing.T) {
		err := eng.ReloadRules([]*domain.Rule{
			exprRule("e-3", "present"),
			exprRule("e-broken", "value +"),
		})
		if err == nil {
			t.Fatal("expected reload error for broken expression")
		}
		if _, evalErr := eng.Evaluate("e-2", nil); evalErr != nil {
			t.Error("expected previous rule set to survive a failed reload")
		}
	})

	t.Run("Close", func(t *testing.T) {
		if err := eng.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
		if eng.Count() != 0 {
			t.Errorf("expected 0 expressions after close, got %d", eng.Count())
		}
	})
}
