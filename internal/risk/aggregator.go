// Package risk re-groups findings into per-category clusters and applies
// approved-exception credits to compute the effective score.
package risk

import (
	"sort"

	"github.com/opensource-legal/covenant/internal/domain"
)

// genericDriverReason is used when a rule carries no recommendation text.
const genericDriverReason = "Review this clause with the policy owner"

// clusterDriverCap limits drivers listed per cluster.
const clusterDriverCap = 3

// Aggregate computes the effective score, the five fixed risk clusters and
// the ranked driver list for one evaluated (version, policy) pair.
// overridden holds the ids of findings with an APPROVED exception.
func Aggregate(rec *domain.ComplianceRecord, findings []*domain.Finding, overridden map[string]bool, cfg domain.EngineConfig) (*domain.RiskAssessment, error) {
	if rec == nil {
		return nil, &domain.MissingAnalysisError{}
	}

	assessment := &domain.RiskAssessment{
		VersionID:      rec.VersionID,
		PolicyID:       rec.PolicyID,
		RawScore:       rec.RawScore,
		EffectiveScore: effectiveScore(rec.RawScore, findings, overridden, cfg.MaxScore),
	}

	byCategory := make(map[domain.RiskCategory][]*domain.Finding)
	for _, f := range findings {
		if f.RiskCategory != "" {
			byCategory[f.RiskCategory] = append(byCategory[f.RiskCategory], f)
		}
	}

	anyAttention := false
	for _, cat := range domain.RiskCategories {
		cluster := buildCluster(cat, byCategory[cat], overridden)
		if cluster.Level != domain.RiskLevelOK {
			anyAttention = true
		}
		assessment.Clusters = append(assessment.Clusters, cluster)
	}

	assessment.TopDrivers = rankDrivers(findings, overridden, 0)

	switch {
	case assessment.EffectiveScore < cfg.NonCompliantEffective:
		assessment.OverallStatus = domain.RecordNonCompliant
	case anyAttention:
		assessment.OverallStatus = domain.RecordNeedsReview
	default:
		assessment.OverallStatus = domain.RecordCompliant
	}

	return assessment, nil
}

// effectiveScore credits the weight of every overridden violation or unclear
// finding back onto the raw score, clamped to the maximum. The score never
// improves any other way.
func effectiveScore(raw int, findings []*domain.Finding, overridden map[string]bool, max int) int {
	score := raw
	for _, f := range findings {
		if f.CountsAgainstScore() && overridden[f.ID] {
			score += f.Weight
		}
	}
	if score > max {
		score = max
	}
	return score
}

func buildCluster(cat domain.RiskCategory, findings []*domain.Finding, overridden map[string]bool) domain.RiskCluster {
	cluster := domain.RiskCluster{Category: cat, Level: domain.RiskLevelOK}

	hasViolation := false
	hasUnclear := false
	hasCriticalViolation := false

	for _, f := range findings {
		isOverridden := f.CountsAgainstScore() && overridden[f.ID]
		if isOverridden {
			cluster.OverriddenCount++
		}

		switch f.Status {
		case domain.StatusViolation:
			cluster.ViolationCount++
			hasViolation = true
			if !isOverridden {
				cluster.TotalWeight += f.Weight
				if f.Severity == domain.SeverityCritical {
					hasCriticalViolation = true
				}
			}
		case domain.StatusUnclear:
			cluster.UnclearCount++
			hasUnclear = true
		default:
			continue
		}

		if domain.MoreSevere(f.Severity, cluster.MaxSeverity) {
			cluster.MaxSeverity = f.Severity
		}
	}

	switch {
	case hasCriticalViolation:
		cluster.Level = domain.RiskLevelHigh
	case hasViolation:
		cluster.Level = domain.RiskLevelMedium
	case hasUnclear:
		cluster.Level = domain.RiskLevelNeedsReview
	}

	cluster.TopDrivers = rankDrivers(findings, overridden, clusterDriverCap)
	return cluster
}

// rankDrivers returns violation and unclear findings as drivers, heaviest
// first. A limit of 0 means unbounded.
func rankDrivers(findings []*domain.Finding, overridden map[string]bool, limit int) []domain.RiskDriver {
	var drivers []domain.RiskDriver
	for _, f := range findings {
		if !f.CountsAgainstScore() {
			continue
		}
		reason := f.Recommendation
		if reason == "" {
			reason = genericDriverReason
		}
		drivers = append(drivers, domain.RiskDriver{
			FindingID:      f.ID,
			RuleID:         f.RuleID,
			ClauseCategory: f.ClauseCategory,
			Status:         f.Status,
			Severity:       f.Severity,
			Weight:         f.Weight,
			Overridden:     overridden[f.ID],
			Reason:         reason,
		})
	}

	sort.SliceStable(drivers, func(i, j int) bool {
		return drivers[i].Weight > drivers[j].Weight
	})

	if limit > 0 && len(drivers) > limit {
		drivers = drivers[:limit]
	}
	return drivers
}
