// Package worker provides async analysis processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-legal/covenant/internal/analysis"
	"github.com/opensource-legal/covenant/internal/domain"
)

// Worker consumes analysis requests from the EventBus and runs them through
// the shared evaluation pipeline.
type Worker struct {
	bus domain.EventBus
	svc *analysis.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// WorkspaceIDs is the list of workspaces to process (empty = all via wildcard if supported)
	WorkspaceIDs []string

	// WorkerCount is the number of concurrent workers per workspace
	WorkerCount int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, svc *analysis.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		svc:    svc,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing analysis requests for the given workspaces.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.WorkspaceIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, workspaceID := range cfg.WorkspaceIDs {
		if err := w.startWorkspaceWorker(workspaceID); err != nil {
			slog.Error("failed to start worker for workspace",
				"workspace_id", workspaceID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"workspace_count", len(cfg.WorkspaceIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all workspaces (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" workspace ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicAnalysisRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startWorkspaceWorker starts a worker for a specific workspace.
func (w *Worker) startWorkspaceWorker(workspaceID string) error {
	sub, err := w.bus.Subscribe(w.ctx, workspaceID, domain.TopicAnalysisRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processRequest(ctx, workspaceID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("workspace worker started",
		"workspace_id", workspaceID,
		"topic", domain.TopicAnalysisRequested,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processRequest(ctx, msg.WorkspaceID, msg)
}

// AnalysisRequest is the message payload for an async evaluation request.
type AnalysisRequest struct {
	VersionID   string `json:"versionId"`
	PolicyID    string `json:"policyId"`
	WorkspaceID string `json:"workspaceId,omitempty"`
	TraceID     string `json:"traceId,omitempty"`
}

// processRequest runs one queued analysis through the pipeline.
func (w *Worker) processRequest(ctx context.Context, workspaceID string, msg *domain.Message) error {
	start := time.Now()

	var req AnalysisRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse analysis request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message workspace if provided
	if req.WorkspaceID != "" {
		workspaceID = req.WorkspaceID
	}

	slog.Debug("processing analysis request",
		"version_id", req.VersionID,
		"policy_id", req.PolicyID,
		"workspace_id", workspaceID,
	)

	assessment, err := w.svc.Evaluate(ctx, workspaceID, req.VersionID, req.PolicyID)
	if err != nil {
		slog.Error("analysis failed",
			"version_id", req.VersionID,
			"policy_id", req.PolicyID,
			"workspace_id", workspaceID,
			"error", err,
		)
		return err
	}

	slog.Info("analysis processed",
		"version_id", req.VersionID,
		"policy_id", req.PolicyID,
		"workspace_id", workspaceID,
		"status", assessment.OverallStatus,
		"raw_score", assessment.RawScore,
		"effective_score", assessment.EffectiveScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
