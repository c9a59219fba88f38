package risk

import (
	"errors"
	"testing"

	"github.com/opensource-legal/covenant/internal/domain"
)

func record(raw int) *domain.ComplianceRecord {
	return &domain.ComplianceRecord{
		WorkspaceID: "ws-1",
		VersionID:   "v-1",
		PolicyID:    "p-1",
		RawScore:    raw,
	}
}

func finding(id string, status domain.ComplianceStatus, severity domain.Severity, cat domain.RiskCategory, weight int) *domain.Finding {
	return &domain.Finding{
		ID:             id,
		VersionID:      "v-1",
		PolicyID:       "p-1",
		RuleID:         "rule-" + id,
		ClauseCategory: "clause-" + id,
		Status:         status,
		Severity:       severity,
		RiskCategory:   cat,
		Weight:         weight,
	}
}

func clusterFor(t *testing.T, a *domain.RiskAssessment, cat domain.RiskCategory) domain.RiskCluster {
	t.Helper()
	for _, c := range a.Clusters {
		if c.Category == cat {
			return c
		}
	}
	t.Fatalf("no cluster for category %s", cat)
	return domain.RiskCluster{}
}

func TestAggregate(t *testing.T) {
	cfg := domain.DefaultEngineConfig()

	t.Run("NilRecord", func(t *testing.T) {
		_, err := Aggregate(nil, nil, nil, cfg)

		var missing *domain.MissingAnalysisError
		if !errors.As(err, &missing) {
			t.Fatalf("expected MissingAnalysisError, got %v", err)
		}
	})

	t.Run("FiveFixedClusters", func(t *testing.T) {
		a, err := Aggregate(record(100), nil, nil, cfg)
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}

		if len(a.Clusters) != 5 {
			t.Fatalf("expected 5 clusters, got %d", len(a.Clusters))
		}
		for i, cat := range domain.RiskCategories {
			if a.Clusters[i].Category != cat {
				t.Errorf("cluster %d: expected %s, got %s", i, cat, a.Clusters[i].Category)
			}
			if a.Clusters[i].Level != domain.RiskLevelOK {
				t.Errorf("cluster %s: expected OK, got %s", cat, a.Clusters[i].Level)
			}
		}
		if a.OverallStatus != domain.RecordCompliant {
			t.Errorf("expected COMPLIANT, got %s", a.OverallStatus)
		}
	})

	t.Run("ClusterLevels", func(t *testing.T) {
		findings := []*domain.Finding{
			finding("f-1", domain.StatusViolation, domain.SeverityCritical, domain.RiskLegal, 30),
			finding("f-2", domain.StatusViolation, domain.SeverityMedium, domain.RiskFinancial, 10),
			finding("f-3", domain.StatusUnclear, domain.SeverityLow, domain.RiskData, 5),
			finding("f-4", domain.StatusCompliant, domain.SeverityHigh, domain.RiskSecurity, 20),
		}

		a, err := Aggregate(record(60), findings, nil, cfg)
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}

		legal := clusterFor(t, a, domain.RiskLegal)
		if legal.Level != domain.RiskLevelHigh {
			t.Errorf("expected HIGH for critical violation, got %s", legal.Level)
		}
		if legal.TotalWeight != 30 {
			t.Errorf("expected legal weight 30, got %d", legal.TotalWeight)
		}
		if legal.MaxSeverity != domain.SeverityCritical {
			t.Errorf("expected CRITICAL max severity, got %s", legal.MaxSeverity)
		}

		if c := clusterFor(t, a, domain.RiskFinancial); c.Level != domain.RiskLevelMedium {
			t.Errorf("expected MEDIUM for non-critical violation, got %s", c.Level)
		}
		if c := clusterFor(t, a, domain.RiskData); c.Level != domain.RiskLevelNeedsReview {
			t.Errorf("expected NEEDS_REVIEW for unclear finding, got %s", c.Level)
		}
		if c := clusterFor(t, a, domain.RiskSecurity); c.Level != domain.RiskLevelOK {
			t.Errorf("compliant findings must leave the cluster OK, got %s", c.Level)
		}
		if c := clusterFor(t, a, domain.RiskOperational); c.Level != domain.RiskLevelOK {
			t.Errorf("expected OK for empty cluster, got %s", c.Level)
		}
	})

	t.Run("EffectiveScoreCredits", func(t *testing.T) {
		findings := []*domain.Finding{
			finding("f-1", domain.StatusViolation, domain.SeverityHigh, domain.RiskLegal, 25),
			finding("f-2", domain.StatusViolation, domain.SeverityMedium, domain.RiskFinancial, 10),
		}
		overridden := map[string]bool{"f-1": true}

		a, err := Aggregate(record(65), findings, overridden, cfg)
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}

		if a.RawScore != 65 {
			t.Errorf("raw score must pass through, got %d", a.RawScore)
		}
		if a.EffectiveScore != 90 {
			t.Errorf("expected 65+25=90, got %d", a.EffectiveScore)
		}

		legal := clusterFor(t, a, domain.RiskLegal)
		if legal.OverriddenCount != 1 {
			t.Errorf("expected 1 overridden in legal cluster, got %d", legal.OverriddenCount)
		}
		if legal.TotalWeight != 0 {
			t.Errorf("overridden violations must not count weight, got %d", legal.TotalWeight)
		}
	})

	t.Run("EffectiveScoreClamped", func(t *testing.T) {
		findings := []*domain.Finding{
			finding("f-1", domain.StatusViolation, domain.SeverityHigh, domain.RiskLegal, 40),
		}

		a, err := Aggregate(record(80), findings, map[string]bool{"f-1": true}, cfg)
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}
		if a.EffectiveScore != 100 {
			t.Errorf("expected clamp at 100, got %d", a.EffectiveScore)
		}
	})

	t.Run("EffectiveNeverBelowRaw", func(t *testing.T) {
		findings := []*domain.Finding{
			finding("f-1", domain.StatusViolation, domain.SeverityHigh, domain.RiskLegal, 25),
		}

		a, err := Aggregate(record(75), findings, nil, cfg)
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}
		if a.EffectiveScore != a.RawScore {
			t.Errorf("no overrides must leave effective == raw, got %d vs %d",
				a.EffectiveScore, a.RawScore)
		}
	})

	t.Run("CompliantOverrideEarnsNoCredit", func(t *testing.T) {
		findings := []*domain.Finding{
			finding("f-1", domain.StatusCompliant, domain.SeverityHigh, domain.RiskLegal, 25),
		}

		a, err := Aggregate(record(75), findings, map[string]bool{"f-1": true}, cfg)
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}
		if a.EffectiveScore != 75 {
			t.Errorf("compliant findings carry no credit, got %d", a.EffectiveScore)
		}
	})

	t.Run("OverallStatusFromEffectiveScore", func(t *testing.T) {
		findings := []*domain.Finding{
			finding("f-1", domain.StatusViolation, domain.SeverityHigh, domain.RiskLegal, 50),
		}

		a, err := Aggregate(record(50), findings, nil, cfg)
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}
		if a.OverallStatus != domain.RecordNonCompliant {
			t.Errorf("expected NON_COMPLIANT below effective floor, got %s", a.OverallStatus)
		}

		// Overriding the violation lifts the effective score above the floor
		// but the attention flag keeps the status at NEEDS_REVIEW.
		a, err = Aggregate(record(50), findings, map[string]bool{"f-1": true}, cfg)
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}
		if a.EffectiveScore != 100 {
			t.Errorf("expected effective 100, got %d", a.EffectiveScore)
		}
		if a.OverallStatus != domain.RecordNeedsReview {
			t.Errorf("expected NEEDS_REVIEW, got %s", a.OverallStatus)
		}
	})
}

func TestDriverRanking(t *testing.T) {
	cfg := domain.DefaultEngineConfig()

	t.Run("HeaviestFirst", func(t *testing.T) {
		findings := []*domain.Finding{
			finding("f-light", domain.StatusViolation, domain.SeverityLow, domain.RiskLegal, 5),
			finding("f-heavy", domain.StatusViolation, domain.SeverityCritical, domain.RiskLegal, 40),
			finding("f-mid", domain.StatusUnclear, domain.SeverityMedium, domain.RiskLegal, 20),
			finding("f-ok", domain.StatusCompliant, domain.SeverityHigh, domain.RiskLegal, 50),
		}

		a, err := Aggregate(record(40), findings, nil, cfg)
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}

		if len(a.TopDrivers) != 3 {
			t.Fatalf("expected 3 drivers, got %d", len(a.TopDrivers))
		}
		want := []string{"f-heavy", "f-mid", "f-light"}
		for i, id := range want {
			if a.TopDrivers[i].FindingID != id {
				t.Errorf("driver %d: expected %s, got %s", i, id, a.TopDrivers[i].FindingID)
			}
		}
	})

	t.Run("ClusterDriversCapped", func(t *testing.T) {
		findings := []*domain.Finding{
			finding("f-1", domain.StatusViolation, domain.SeverityLow, domain.RiskLegal, 10),
			finding("f-2", domain.StatusViolation, domain.SeverityLow, domain.RiskLegal, 20),
			finding("f-3", domain.StatusViolation, domain.SeverityLow, domain.RiskLegal, 30),
			finding("f-4", domain.StatusViolation, domain.SeverityLow, domain.RiskLegal, 40),
		}

		a, err := Aggregate(record(0), findings, nil, cfg)
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}

		legal := clusterFor(t, a, domain.RiskLegal)
		if len(legal.TopDrivers) != 3 {
			t.Errorf("expected cluster drivers capped at 3, got %d", len(legal.TopDrivers))
		}
		if legal.TopDrivers[0].FindingID != "f-4" {
			t.Errorf("expected heaviest driver first, got %s", legal.TopDrivers[0].FindingID)
		}

		// The flat list stays uncapped.
		if len(a.TopDrivers) != 4 {
			t.Errorf("expected 4 flat drivers, got %d", len(a.TopDrivers))
		}
	})

	t.Run("StableForEqualWeights", func(t *testing.T) {
		findings := []*domain.Finding{
			finding("f-a", domain.StatusViolation, domain.SeverityLow, domain.RiskLegal, 10),
			finding("f-b", domain.StatusViolation, domain.SeverityLow, domain.RiskLegal, 10),
			finding("f-c", domain.StatusViolation, domain.SeverityLow, domain.RiskLegal, 10),
		}

		a, err := Aggregate(record(70), findings, nil, cfg)
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}

		want := []string{"f-a", "f-b", "f-c"}
		for i, id := range want {
			if a.TopDrivers[i].FindingID != id {
				t.Errorf("driver %d: expected %s (input order), got %s", i, id, a.TopDrivers[i].FindingID)
			}
		}
	})

	t.Run("ReasonFallback", func(t *testing.T) {
		withReason := finding("f-r", domain.StatusViolation, domain.SeverityLow, domain.RiskLegal, 10)
		withReason.Recommendation = "Negotiate a liability cap"
		without := finding("f-n", domain.StatusViolation, domain.SeverityLow, domain.RiskLegal, 5)

		a, err := Aggregate(record(85), []*domain.Finding{withReason, without}, nil, cfg)
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}

		if a.TopDrivers[0].Reason != "Negotiate a liability cap" {
			t.Errorf("expected rule recommendation, got %q", a.TopDrivers[0].Reason)
		}
		if a.TopDrivers[1].Reason == "" {
			t.Error("expected placeholder reason for missing recommendation")
		}
	})
}
