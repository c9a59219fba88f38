package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-legal/covenant/internal/analysis"
	"github.com/opensource-legal/covenant/internal/decision"
	"github.com/opensource-legal/covenant/internal/diff"
	"github.com/opensource-legal/covenant/internal/domain"
	"github.com/opensource-legal/covenant/internal/engine"
	"github.com/opensource-legal/covenant/internal/repository"
	"github.com/opensource-legal/covenant/internal/risk"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	svc     *analysis.Service
	expr    *engine.ExpressionEngine
	decider *decision.Engine
	cfg     domain.EngineConfig
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, svc *analysis.Service, expr *engine.ExpressionEngine, decider *decision.Engine, cfg domain.EngineConfig, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		svc:     svc,
		expr:    expr,
		decider: decider,
		cfg:     cfg,
		version: version,
	}
}

// AnalysisRequest is the bus payload for an async evaluation request.
type AnalysisRequest struct {
	VersionID string `json:"versionId"`
	PolicyID  string `json:"policyId"`
}

// Evaluate handles POST /policies/{policyID}/versions/{versionID}/evaluate.
// With ?async=true the request is queued on the bus for the worker instead of
// running inline.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	workspaceID := GetWorkspaceID(ctx)
	policyID := chi.URLParam(r, "policyID")
	versionID := chi.URLParam(r, "versionID")

	if r.URL.Query().Get("async") == "true" {
		if h.bus == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "event bus not available",
			})
			return
		}

		payload, _ := json.Marshal(AnalysisRequest{VersionID: versionID, PolicyID: policyID})
		if err := h.bus.Publish(ctx, workspaceID, domain.TopicAnalysisRequested, payload); err != nil {
			slog.Error("failed to queue analysis request", "version_id", versionID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to queue analysis request",
			})
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":    "queued",
			"versionId": versionID,
			"policyId":  policyID,
		})
		return
	}

	assessment, err := h.svc.Evaluate(ctx, workspaceID, versionID, policyID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"assessment": assessment,
		"metadata": map[string]any{
			"traceId":    GetTraceID(ctx),
			"durationMs": time.Since(start).Milliseconds(),
			"version":    h.version,
		},
	})
}

// Risk handles GET /versions/{versionID}/policies/{policyID}/risk.
// With ?summary=true a cached snapshot is served when available.
func (h *Handler) Risk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workspaceID := GetWorkspaceID(ctx)
	versionID := chi.URLParam(r, "versionID")
	policyID := chi.URLParam(r, "policyID")

	if r.URL.Query().Get("summary") == "true" && h.cache != nil {
		if snap, err := h.cache.GetAnalysis(ctx, workspaceID, versionID, policyID); err == nil && snap != nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"summary": snap,
				"cached":  true,
			})
			return
		}
	}

	assessment, err := h.svc.Assessment(ctx, workspaceID, versionID, policyID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}

// GetDecision handles GET /versions/{versionID}/policies/{policyID}/decision.
// A finalized decision is returned as stored; otherwise a fresh DRAFT preview
// is computed from the current findings and exceptions.
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workspaceID := GetWorkspaceID(ctx)
	versionID := chi.URLParam(r, "versionID")
	policyID := chi.URLParam(r, "policyID")

	existing, err := h.repo.GetDecision(ctx, workspaceID, versionID, policyID)
	if err == nil && existing.Final() {
		writeJSON(w, http.StatusOK, existing)
		return
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		h.writeError(w, err)
		return
	}

	dec, err := h.computeDecision(r, workspaceID, versionID, policyID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dec)
}

// FinalizeDecision handles POST /versions/{versionID}/policies/{policyID}/decision/finalize.
// Finalizing twice returns the stored record unchanged.
func (h *Handler) FinalizeDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workspaceID := GetWorkspaceID(ctx)
	versionID := chi.URLParam(r, "versionID")
	policyID := chi.URLParam(r, "policyID")

	// Make sure there is a decision to finalize.
	existing, err := h.repo.GetDecision(ctx, workspaceID, versionID, policyID)
	if errors.Is(err, repository.ErrNotFound) {
		if _, err := h.computeDecision(r, workspaceID, versionID, policyID); err != nil {
			h.writeError(w, err)
			return
		}
	} else if err != nil {
		h.writeError(w, err)
		return
	}

	alreadyFinal := existing != nil && existing.Final()

	final, err := h.repo.FinalizeDecision(ctx, workspaceID, versionID, policyID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if !alreadyFinal && h.bus != nil {
		payload, _ := json.Marshal(final)
		if err := h.bus.Publish(ctx, workspaceID, domain.TopicDecisionFinalized, payload); err != nil {
			slog.Error("failed to publish decision finalized event",
				"version_id", versionID,
				"error", err,
			)
		}
	}

	writeJSON(w, http.StatusOK, final)
}

// computeDecision builds and persists a DRAFT decision preview. When the
// stored decision is already FINAL the stored record is returned unchanged.
func (h *Handler) computeDecision(r *http.Request, workspaceID, versionID, policyID string) (*domain.DealDecision, error) {
	ctx := r.Context()

	rec, findings, overridden, err := h.svc.State(ctx, workspaceID, versionID, policyID)
	if err != nil {
		return nil, err
	}

	assessment, err := risk.Aggregate(rec, findings, overridden, h.cfg)
	if err != nil {
		return nil, err
	}

	counts, err := h.repo.CountExceptions(ctx, workspaceID, versionID, policyID)
	if err != nil {
		return nil, err
	}

	dec := h.decider.Compute(decision.Input{
		Assessment: assessment,
		Findings:   findings,
		Overridden: overridden,
		Exceptions: counts,
	})

	err = h.repo.SaveDecision(ctx, workspaceID, dec)
	if errors.Is(err, repository.ErrDecisionFinal) {
		return h.repo.GetDecision(ctx, workspaceID, versionID, policyID)
	}
	if err != nil {
		return nil, err
	}

	return dec, nil
}

// Compare handles GET /policies/{policyID}/compare?from={v1}&to={v2}.
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workspaceID := GetWorkspaceID(ctx)
	policyID := chi.URLParam(r, "policyID")
	fromID := r.URL.Query().Get("from")
	toID := r.URL.Query().Get("to")

	if fromID == "" || toID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "from and to query parameters are required",
		})
		return
	}

	from, err := h.versionAnalysis(r, workspaceID, fromID, policyID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	to, err := h.versionAnalysis(r, workspaceID, toID, policyID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	comparison, err := diff.Compare(policyID, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, comparison)
}

func (h *Handler) versionAnalysis(r *http.Request, workspaceID, versionID, policyID string) (*diff.VersionAnalysis, error) {
	ctx := r.Context()

	rec, findings, overridden, err := h.svc.State(ctx, workspaceID, versionID, policyID)
	if err != nil {
		return nil, err
	}

	assessment, err := risk.Aggregate(rec, findings, overridden, h.cfg)
	if err != nil {
		return nil, err
	}

	return &diff.VersionAnalysis{
		VersionID:      versionID,
		Record:         rec,
		EffectiveScore: assessment.EffectiveScore,
		Findings:       findings,
		Overridden:     overridden,
	}, nil
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID             string              `json:"id"`
	ClauseCategory string              `json:"clauseCategory"`
	Type           domain.RuleType     `json:"type"`
	ExpectedValue  any                 `json:"expectedValue,omitempty"`
	Expression     string              `json:"expression,omitempty"`
	Weight         int                 `json:"weight"`
	Severity       domain.Severity     `json:"severity,omitempty"`
	RiskCategory   domain.RiskCategory `json:"riskCategory,omitempty"`
	Recommendation string              `json:"recommendation,omitempty"`
	Enabled        bool                `json:"enabled"`
}

var validRuleTypes = map[domain.RuleType]bool{
	domain.RuleRequired:      true,
	domain.RuleForbidden:     true,
	domain.RuleMinValue:      true,
	domain.RuleMaxValue:      true,
	domain.RuleAllowedValues: true,
	domain.RuleExpression:    true,
}

// CreateRule handles POST /policies/{policyID}/rules.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workspaceID := GetWorkspaceID(ctx)
	policyID := chi.URLParam(r, "policyID")

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.ClauseCategory == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id and clauseCategory are required",
		})
		return
	}
	if !validRuleTypes[req.Type] {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown rule type: " + string(req.Type),
		})
		return
	}
	if req.Weight <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "weight must be positive",
		})
		return
	}

	rule := &domain.Rule{
		ID:             req.ID,
		WorkspaceID:    workspaceID,
		PolicyID:       policyID,
		ClauseCategory: req.ClauseCategory,
		Type:           req.Type,
		ExpectedValue:  req.ExpectedValue,
		Expression:     req.Expression,
		Weight:         req.Weight,
		Severity:       req.Severity,
		RiskCategory:   req.RiskCategory,
		Recommendation: req.Recommendation,
		Enabled:        req.Enabled,
	}

	// EXPRESSION rules must compile before they are accepted.
	if rule.Type == domain.RuleExpression && h.expr != nil {
		if err := h.expr.ValidateRule(rule); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid expression: " + err.Error(),
			})
			return
		}
	}

	if err := h.repo.SaveRule(ctx, workspaceID, rule); err != nil {
		h.writeError(w, err)
		return
	}

	if rule.Type == domain.RuleExpression && rule.Enabled && h.expr != nil {
		if err := h.expr.LoadRule(rule); err != nil {
			slog.Error("failed to load expression rule", "id", rule.ID, "error", err)
		}
	}

	slog.Info("rule created", "id", rule.ID, "policy_id", policyID, "type", rule.Type)
	writeJSON(w, http.StatusCreated, rule)
}

// ListRules handles GET /policies/{policyID}/rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workspaceID := GetWorkspaceID(ctx)
	policyID := chi.URLParam(r, "policyID")

	rules, err := h.repo.ListRules(ctx, workspaceID, policyID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// GetRule handles GET /rules/{id}.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workspaceID := GetWorkspaceID(ctx)
	ruleID := chi.URLParam(r, "id")

	rule, err := h.repo.GetRule(ctx, workspaceID, ruleID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// DeleteRule handles DELETE /rules/{id}. Rules are disabled, not removed, so
// historical findings keep their provenance.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workspaceID := GetWorkspaceID(ctx)
	ruleID := chi.URLParam(r, "id")

	if err := h.repo.DeleteRule(ctx, workspaceID, ruleID); err != nil {
		h.writeError(w, err)
		return
	}

	slog.Info("rule disabled", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "rule disabled",
	})
}

// ReloadRulesRequest is the request body for POST /rules/reload.
type ReloadRulesRequest struct {
	PolicyID string `json:"policyId"`
}

// ReloadRules handles POST /rules/reload: reloads a policy's EXPRESSION rules
// from the database into the expression engine without a restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workspaceID := GetWorkspaceID(ctx)

	if h.expr == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "expression engine not available",
		})
		return
	}

	var req ReloadRulesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PolicyID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "policyId is required",
		})
		return
	}

	rules, err := h.repo.ListRules(ctx, workspaceID, req.PolicyID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.expr.LoadRules(rules); err != nil {
		slog.Error("failed to reload expression rules", "policy_id", req.PolicyID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("expression rules reloaded", "policy_id", req.PolicyID, "loaded", h.expr.Count())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"loaded":  h.expr.Count(),
	})
}

// IngestEvidenceRequest is the request body for POST /versions/{versionID}/evidence.
type IngestEvidenceRequest struct {
	Items []EvidenceItemRequest `json:"items"`
}

// EvidenceItemRequest is one externally extracted evidence item.
type EvidenceItemRequest struct {
	ClauseCategory string  `json:"clauseCategory"`
	Value          any     `json:"value,omitempty"`
	Excerpt        string  `json:"excerpt,omitempty"`
	Confidence     float64 `json:"confidence"`
}

// IngestEvidence handles POST /versions/{versionID}/evidence. Items are
// upserted per clause category; re-ingesting a category replaces it.
func (h *Handler) IngestEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workspaceID := GetWorkspaceID(ctx)
	versionID := chi.URLParam(r, "versionID")

	var req IngestEvidenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one evidence item is required",
		})
		return
	}

	for i, item := range req.Items {
		if item.ClauseCategory == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "clauseCategory is required for every item",
			})
			return
		}
		if item.Confidence < 0 || item.Confidence > 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "confidence must be between 0 and 1",
			})
			return
		}

		if err := h.repo.SaveEvidence(ctx, workspaceID, &domain.EvidenceItem{
			VersionID:      versionID,
			ClauseCategory: item.ClauseCategory,
			Value:          item.Value,
			Excerpt:        item.Excerpt,
			Confidence:     item.Confidence,
		}); err != nil {
			slog.Error("failed to save evidence item", "index", i, "error", err)
			h.writeError(w, err)
			return
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(map[string]any{
			"versionId": versionID,
			"count":     len(req.Items),
		})
		if err := h.bus.Publish(ctx, workspaceID, domain.TopicEvidenceIngested, payload); err != nil {
			slog.Error("failed to publish evidence ingested event", "version_id", versionID, "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"versionId": versionID,
		"ingested":  len(req.Items),
	})
}

// RequestExceptionRequest is the request body for requesting an exception.
type RequestExceptionRequest struct {
	Justification string `json:"justification,omitempty"`
}

// RequestException handles POST /findings/{findingID}/exceptions.
// Re-requesting while an exception is active returns the existing one.
func (h *Handler) RequestException(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workspaceID := GetWorkspaceID(ctx)
	findingID := chi.URLParam(r, "findingID")

	var req RequestExceptionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	finding, err := h.repo.GetFinding(ctx, workspaceID, findingID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	exc, err := h.repo.SaveException(ctx, workspaceID, &domain.Exception{
		FindingID:     finding.ID,
		VersionID:     finding.VersionID,
		PolicyID:      finding.PolicyID,
		Justification: req.Justification,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	slog.Info("exception requested", "id", exc.ID, "finding_id", findingID)
	writeJSON(w, http.StatusCreated, exc)
}

// DecideException handles POST /exceptions/{exceptionID}/{approve|reject|withdraw}.
func (h *Handler) DecideException(status domain.ExceptionStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		workspaceID := GetWorkspaceID(ctx)
		exceptionID := chi.URLParam(r, "exceptionID")

		exc, err := h.repo.GetException(ctx, workspaceID, exceptionID)
		if err != nil {
			h.writeError(w, err)
			return
		}

		if !validTransition(exc.Status, status) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": "cannot move exception from " + string(exc.Status) + " to " + string(status),
			})
			return
		}

		updated, err := h.repo.UpdateExceptionStatus(ctx, workspaceID, exceptionID, status)
		if err != nil {
			h.writeError(w, err)
			return
		}

		// The override set changed: drop the cached snapshot so the next
		// summary read reflects it.
		if h.cache != nil {
			_ = h.cache.Delete(ctx, workspaceID, domain.AnalysisCacheKey(exc.VersionID, exc.PolicyID))
		}

		slog.Info("exception decided", "id", exceptionID, "status", status)
		writeJSON(w, http.StatusOK, updated)
	}
}

// validTransition enforces the exception lifecycle: only a pending request can
// be approved or rejected, and only an active exception can be withdrawn.
func validTransition(from, to domain.ExceptionStatus) bool {
	switch to {
	case domain.ExceptionApproved, domain.ExceptionRejected:
		return from == domain.ExceptionRequested
	case domain.ExceptionWithdrawn:
		return from == domain.ExceptionRequested || from == domain.ExceptionApproved
	default:
		return false
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// writeError maps domain and repository errors to HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var missingEvidence *domain.MissingEvidenceError
	var missingAnalysis *domain.MissingAnalysisError

	switch {
	case errors.As(err, &missingEvidence):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": missingEvidence.Error(),
		})
	case errors.As(err, &missingAnalysis):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": missingAnalysis.Error(),
		})
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "not found",
		})
	case errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	case errors.Is(err, repository.ErrDecisionFinal):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "decision is final",
		})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
