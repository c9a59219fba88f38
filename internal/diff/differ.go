// Package diff compares the rule evaluations of two contract versions.
package diff

import (
	"sort"

	"github.com/opensource-legal/covenant/internal/domain"
)

// driverCap limits the top drivers on a comparison.
const driverCap = 5

// VersionAnalysis is one side of a comparison: the scored state of a policy
// against a single contract version.
type VersionAnalysis struct {
	VersionID      string
	Record         *domain.ComplianceRecord
	EffectiveScore int
	Findings       []*domain.Finding
	Overridden     map[string]bool
}

// Compare classifies every rule key present in either version and ranks the
// deltas with the largest score impact. Both sides must carry a compliance
// record; a side without one fails with MissingAnalysisError naming the
// version, never a partial comparison.
func Compare(policyID string, from, to *VersionAnalysis) (*domain.VersionComparison, error) {
	if from == nil || from.Record == nil {
		return nil, &domain.MissingAnalysisError{VersionID: versionID(from)}
	}
	if to == nil || to.Record == nil {
		return nil, &domain.MissingAnalysisError{VersionID: versionID(to)}
	}

	fromByKey := indexFindings(from.Findings)
	toByKey := indexFindings(to.Findings)

	// Union of keys: "from" order first, then keys new in "to".
	keys := make([]string, 0, len(from.Findings)+len(to.Findings))
	seen := make(map[string]bool, len(from.Findings))
	for _, f := range from.Findings {
		if !seen[f.Key()] {
			seen[f.Key()] = true
			keys = append(keys, f.Key())
		}
	}
	for _, f := range to.Findings {
		if !seen[f.Key()] {
			seen[f.Key()] = true
			keys = append(keys, f.Key())
		}
	}

	changes := make([]domain.ChangeItem, 0, len(keys))
	for _, key := range keys {
		changes = append(changes, classify(key, fromByKey[key], toByKey[key], from.Overridden, to.Overridden))
	}

	effectiveDelta := to.EffectiveScore - from.EffectiveScore
	label := domain.DeltaUnchanged
	switch {
	case effectiveDelta > 0:
		label = domain.DeltaImproved
	case effectiveDelta < 0:
		label = domain.DeltaWorsened
	}

	return &domain.VersionComparison{
		PolicyID:      policyID,
		FromVersionID: from.VersionID,
		ToVersionID:   to.VersionID,
		Changes:       changes,
		TopDrivers:    topDrivers(changes),
		Delta: domain.ScoreDelta{
			Raw:       to.Record.RawScore - from.Record.RawScore,
			Effective: effectiveDelta,
			Label:     label,
		},
	}, nil
}

func classify(key string, from, to *domain.Finding, fromOverrides, toOverrides map[string]bool) domain.ChangeItem {
	item := domain.ChangeItem{RuleKey: key}

	var fromSnap, toSnap *domain.FindingSnapshot
	if from != nil {
		fromSnap = snapshot(from, fromOverrides)
		item.ClauseCategory = from.ClauseCategory
	}
	if to != nil {
		toSnap = snapshot(to, toOverrides)
		item.ClauseCategory = to.ClauseCategory
	}
	item.From = fromSnap
	item.To = toSnap
	item.DeltaImpact = impact(fromSnap) - impact(toSnap)

	switch {
	case from == nil:
		item.Type = domain.ChangeAdded
	case to == nil:
		item.Type = domain.ChangeRemoved
	case modified(fromSnap, toSnap):
		item.Type = domain.ChangeModified
	default:
		item.Type = domain.ChangeUnchanged
	}

	item.Why = explain(item.Type, fromSnap, toSnap)
	return item
}

func snapshot(f *domain.Finding, overrides map[string]bool) *domain.FindingSnapshot {
	return &domain.FindingSnapshot{
		RuleID:         f.RuleID,
		ClauseCategory: f.ClauseCategory,
		Status:         f.Status,
		Severity:       f.Severity,
		Weight:         f.Weight,
		Overridden:     f.CountsAgainstScore() && overrides[f.ID],
		Value:          f.Value,
		Excerpt:        f.Excerpt,
		Confidence:     f.Confidence,
	}
}

// impact is the risk a snapshot contributes: the rule weight when it is a
// non-overridden violation, zero otherwise.
func impact(s *domain.FindingSnapshot) int {
	if s == nil {
		return 0
	}
	if s.Status == domain.StatusViolation && !s.Overridden {
		return s.Weight
	}
	return 0
}

func modified(from, to *domain.FindingSnapshot) bool {
	if from.Status != to.Status || from.Overridden != to.Overridden {
		return true
	}
	if !canonicalEqual(from.Value, to.Value) {
		return true
	}
	return from.Excerpt != to.Excerpt
}

func indexFindings(findings []*domain.Finding) map[string]*domain.Finding {
	byKey := make(map[string]*domain.Finding, len(findings))
	for _, f := range findings {
		byKey[f.Key()] = f
	}
	return byKey
}

// topDrivers ranks changes by |DeltaImpact| descending, ties kept in the
// original change order, capped at five.
func topDrivers(changes []domain.ChangeItem) []domain.ChangeItem {
	drivers := make([]domain.ChangeItem, 0, len(changes))
	for _, c := range changes {
		if c.DeltaImpact != 0 {
			drivers = append(drivers, c)
		}
	}
	sort.SliceStable(drivers, func(i, j int) bool {
		return abs(drivers[i].DeltaImpact) > abs(drivers[j].DeltaImpact)
	})
	if len(drivers) > driverCap {
		drivers = drivers[:driverCap]
	}
	return drivers
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func versionID(a *VersionAnalysis) string {
	if a == nil {
		return ""
	}
	return a.VersionID
}
