// Package analysis runs the evaluation pipeline: score a policy against a
// contract version, persist the findings, and aggregate the risk picture.
// Both the HTTP handlers and the async worker drive the same service.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/opensource-legal/covenant/internal/domain"
	"github.com/opensource-legal/covenant/internal/engine"
	"github.com/opensource-legal/covenant/internal/repository"
	"github.com/opensource-legal/covenant/internal/risk"
)

// snapshotTTL bounds how long a cached analysis summary is served.
const snapshotTTL = 15 * time.Minute

// churnWindow is the time window for tracking re-evaluation churn per version.
const churnWindow = time.Hour

// Service wires the scorer, repository, cache and bus into one pipeline.
type Service struct {
	repo   domain.Repository
	cache  domain.Cache
	bus    domain.EventBus
	scorer *engine.Scorer
	cfg    domain.EngineConfig
}

// NewService creates an analysis service. Cache and bus may be nil; the
// pipeline then skips snapshot caching and event publishing.
func NewService(repo domain.Repository, cache domain.Cache, bus domain.EventBus, scorer *engine.Scorer, cfg domain.EngineConfig) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		bus:    bus,
		scorer: scorer,
		cfg:    cfg,
	}
}

// CompletedEvent is the payload published on analysis completion.
type CompletedEvent struct {
	VersionID      string              `json:"versionId"`
	PolicyID       string              `json:"policyId"`
	RawScore       int                 `json:"rawScore"`
	EffectiveScore int                 `json:"effectiveScore"`
	Status         domain.RecordStatus `json:"status"`
}

// Evaluate runs the full pipeline for one (version, policy) pair: load rules
// and evidence, score, replace the stored findings, persist the compliance
// record, and aggregate risk with approved exceptions applied.
func (s *Service) Evaluate(ctx context.Context, workspaceID, versionID, policyID string) (*domain.RiskAssessment, error) {
	rules, err := s.repo.ListRules(ctx, workspaceID, policyID)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListEvidence(ctx, workspaceID, versionID)
	if err != nil {
		return nil, err
	}
	evidence := domain.NewEvidenceSet(items)

	result, err := s.scorer.ScorePolicy(versionID, policyID, rules, evidence)
	if err != nil {
		return nil, err
	}

	// ReplaceFindings assigns stable ids in place, reusing ids per rule so
	// approved exceptions stay attached across re-evaluations.
	if err := s.repo.ReplaceFindings(ctx, workspaceID, versionID, policyID, result.Findings); err != nil {
		return nil, err
	}

	rec := &domain.ComplianceRecord{
		WorkspaceID: workspaceID,
		VersionID:   versionID,
		PolicyID:    policyID,
		RawScore:    result.RawScore,
		Status:      result.Status,
		EvaluatedAt: time.Now().UTC(),
	}
	if err := s.repo.SaveComplianceRecord(ctx, workspaceID, rec); err != nil {
		return nil, err
	}

	overridden, err := s.repo.ApprovedExceptionFindingIDs(ctx, workspaceID, versionID, policyID)
	if err != nil {
		return nil, err
	}

	assessment, err := risk.Aggregate(rec, result.Findings, overridden, s.cfg)
	if err != nil {
		return nil, err
	}

	s.cacheSnapshot(ctx, workspaceID, rec, assessment, len(result.Findings))
	s.publishCompleted(ctx, workspaceID, assessment, rec.Status)

	return assessment, nil
}

// Assessment recomputes the risk picture from the stored findings of an
// already-evaluated (version, policy) pair.
func (s *Service) Assessment(ctx context.Context, workspaceID, versionID, policyID string) (*domain.RiskAssessment, error) {
	rec, findings, overridden, err := s.State(ctx, workspaceID, versionID, policyID)
	if err != nil {
		return nil, err
	}
	return risk.Aggregate(rec, findings, overridden, s.cfg)
}

// State loads the persisted evaluation state for a (version, policy) pair.
// Returns MissingAnalysisError when the pair has never been evaluated.
func (s *Service) State(ctx context.Context, workspaceID, versionID, policyID string) (*domain.ComplianceRecord, []*domain.Finding, map[string]bool, error) {
	rec, err := s.repo.GetComplianceRecord(ctx, workspaceID, versionID, policyID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, nil, &domain.MissingAnalysisError{VersionID: versionID}
	}
	if err != nil {
		return nil, nil, nil, err
	}

	findings, err := s.repo.ListFindings(ctx, workspaceID, versionID, policyID)
	if err != nil {
		return nil, nil, nil, err
	}

	overridden, err := s.repo.ApprovedExceptionFindingIDs(ctx, workspaceID, versionID, policyID)
	if err != nil {
		return nil, nil, nil, err
	}

	return rec, findings, overridden, nil
}

func (s *Service) cacheSnapshot(ctx context.Context, workspaceID string, rec *domain.ComplianceRecord, assessment *domain.RiskAssessment, findingCount int) {
	if s.cache == nil {
		return
	}

	snap := &domain.AnalysisSnapshot{
		RawScore:       rec.RawScore,
		EffectiveScore: assessment.EffectiveScore,
		Status:         rec.Status,
		FindingCount:   findingCount,
		EvaluatedAt:    rec.EvaluatedAt.Format(time.RFC3339),
	}
	if err := s.cache.SetAnalysis(ctx, workspaceID, rec.VersionID, rec.PolicyID, snap, snapshotTTL); err != nil {
		slog.Warn("failed to cache analysis snapshot",
			"version_id", rec.VersionID,
			"policy_id", rec.PolicyID,
			"error", err,
		)
	}

	// Track re-evaluation churn so operators can spot versions being rescored
	// in a tight loop.
	count, err := s.cache.IncrementCounter(ctx, workspaceID, "reeval:"+rec.VersionID, churnWindow)
	if err == nil && count > 10 {
		slog.Warn("high re-evaluation churn",
			"version_id", rec.VersionID,
			"count", count,
		)
	}
}

func (s *Service) publishCompleted(ctx context.Context, workspaceID string, assessment *domain.RiskAssessment, status domain.RecordStatus) {
	if s.bus == nil {
		return
	}

	payload, _ := json.Marshal(CompletedEvent{
		VersionID:      assessment.VersionID,
		PolicyID:       assessment.PolicyID,
		RawScore:       assessment.RawScore,
		EffectiveScore: assessment.EffectiveScore,
		Status:         status,
	})
	if err := s.bus.Publish(ctx, workspaceID, domain.TopicAnalysisCompleted, payload); err != nil {
		slog.Error("failed to publish analysis completed event",
			"version_id", assessment.VersionID,
			"error", err,
		)
	}

	if status == domain.RecordNonCompliant {
		if err := s.bus.Publish(ctx, workspaceID, domain.TopicAlert, payload); err != nil {
			slog.Error("failed to publish alert",
				"version_id", assessment.VersionID,
				"error", err,
			)
		}
	}
}
