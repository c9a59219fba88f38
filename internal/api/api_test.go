package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/opensource-legal/covenant/internal/analysis"
	"github.com/opensource-legal/covenant/internal/bus"
	"github.com/opensource-legal/covenant/internal/cache"
	"github.com/opensource-legal/covenant/internal/decision"
	"github.com/opensource-legal/covenant/internal/domain"
	"github.com/opensource-legal/covenant/internal/engine"
	"github.com/opensource-legal/covenant/internal/repository"
)

const testWorkspace = "ws-test"

// createTestServer builds a full Community-tier stack: SQLite repository,
// LRU cache, channel bus, and the real evaluation pipeline.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	lru := cache.NewLRUCache(100)
	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	expr, err := engine.NewExpressionEngine()
	if err != nil {
		t.Fatalf("failed to create expression engine: %v", err)
	}

	engineCfg := domain.DefaultEngineConfig()
	scorer := engine.NewScorer(engineCfg, expr)
	svc := analysis.NewService(repo, lru, eventBus, scorer, engineCfg)
	decider := decision.NewEngine(engineCfg)

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	return NewServer(cfg, repo, lru, eventBus, svc, expr, decider, engineCfg, "test-v1")
}

func doRequest(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(WorkspaceIDHeader, testWorkspace)

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func seedRules(t *testing.T, server *Server, policyID string) {
	t.Helper()

	rules := []CreateRuleRequest{
		{
			ID:             "rule-liability",
			ClauseCategory: "limitation_of_liability",
			Type:           domain.RuleRequired,
			Weight:         30,
			Severity:       domain.SeverityCritical,
			RiskCategory:   domain.RiskLegal,
			Recommendation: "Add a liability cap clause",
			Enabled:        true,
		},
		{
			ID:             "rule-notice",
			ClauseCategory: "termination_notice",
			Type:           domain.RuleMinValue,
			ExpectedValue:  30,
			Weight:         25,
			Severity:       domain.SeverityHigh,
			RiskCategory:   domain.RiskOperational,
			Recommendation: "Require at least 30 days notice",
			Enabled:        true,
		},
	}

	for _, r := range rules {
		rr := doRequest(t, server, http.MethodPost, "/policies/"+policyID+"/rules", r)
		if rr.Code != http.StatusCreated {
			t.Fatalf("failed to create rule %s: %d %s", r.ID, rr.Code, rr.Body.String())
		}
	}
}

func ingestEvidence(t *testing.T, server *Server, versionID string, items []EvidenceItemRequest) {
	t.Helper()

	rr := doRequest(t, server, http.MethodPost, "/versions/"+versionID+"/evidence", IngestEvidenceRequest{Items: items})
	if rr.Code != http.StatusCreated {
		t.Fatalf("failed to ingest evidence for %s: %d %s", versionID, rr.Code, rr.Body.String())
	}
}

func evaluate(t *testing.T, server *Server, policyID, versionID string) *domain.RiskAssessment {
	t.Helper()

	rr := doRequest(t, server, http.MethodPost,
		fmt.Sprintf("/policies/%s/versions/%s/evaluate", policyID, versionID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("evaluate failed: %d %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Assessment domain.RiskAssessment `json:"assessment"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse evaluate response: %v", err)
	}
	return &resp.Assessment
}

func TestEvaluatePipeline(t *testing.T) {
	server := createTestServer(t)
	seedRules(t, server, "policy-1")

	t.Run("CompliantVersion", func(t *testing.T) {
		ingestEvidence(t, server, "v-clean", []EvidenceItemRequest{
			{ClauseCategory: "limitation_of_liability", Value: "capped at fees paid", Confidence: 0.9},
			{ClauseCategory: "termination_notice", Value: 45, Confidence: 0.9},
		})

		assessment := evaluate(t, server, "policy-1", "v-clean")
		if assessment.RawScore != 100 {
			t.Errorf("expected raw score 100, got %d", assessment.RawScore)
		}
		if assessment.OverallStatus != domain.RecordCompliant {
			t.Errorf("expected COMPLIANT, got %s", assessment.OverallStatus)
		}
		if len(assessment.Clusters) != 5 {
			t.Errorf("expected 5 clusters, got %d", len(assessment.Clusters))
		}
	})

	t.Run("ViolationVersion", func(t *testing.T) {
		ingestEvidence(t, server, "v-short-notice", []EvidenceItemRequest{
			{ClauseCategory: "limitation_of_liability", Value: "capped at fees paid", Confidence: 0.9},
			{ClauseCategory: "termination_notice", Value: 15, Confidence: 0.9},
		})

		assessment := evaluate(t, server, "policy-1", "v-short-notice")
		if assessment.RawScore != 75 {
			t.Errorf("expected raw score 75, got %d", assessment.RawScore)
		}
		if assessment.OverallStatus != domain.RecordNeedsReview {
			t.Errorf("expected NEEDS_REVIEW, got %s", assessment.OverallStatus)
		}
	})

	t.Run("CriticalCapApplies", func(t *testing.T) {
		// Liability clause absent entirely: REQUIRED violation, critical cap.
		ingestEvidence(t, server, "v-no-liability", []EvidenceItemRequest{
			{ClauseCategory: "termination_notice", Value: 45, Confidence: 0.9},
		})

		assessment := evaluate(t, server, "policy-1", "v-no-liability")
		if assessment.RawScore != 40 {
			t.Errorf("expected raw score capped at 40, got %d", assessment.RawScore)
		}
	})

	t.Run("MissingEvidence", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/policies/policy-1/versions/v-empty/evaluate", nil)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected 422 for missing evidence, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("RiskBeforeEvaluation", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/versions/v-never/policies/policy-1/risk", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404 for unevaluated version, got %d", rr.Code)
		}
	})

	t.Run("RiskAfterEvaluation", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/versions/v-clean/policies/policy-1/risk", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var assessment domain.RiskAssessment
		if err := json.Unmarshal(rr.Body.Bytes(), &assessment); err != nil {
			t.Fatalf("failed to parse risk response: %v", err)
		}
		if assessment.EffectiveScore != 100 {
			t.Errorf("expected effective score 100, got %d", assessment.EffectiveScore)
		}
	})

	t.Run("CachedSummary", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/versions/v-clean/policies/policy-1/risk?summary=true", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}

		var resp struct {
			Cached  bool                    `json:"cached"`
			Summary domain.AnalysisSnapshot `json:"summary"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse summary response: %v", err)
		}
		if !resp.Cached {
			t.Error("expected cached summary after evaluation")
		}
		if resp.Summary.RawScore != 100 {
			t.Errorf("expected snapshot raw score 100, got %d", resp.Summary.RawScore)
		}
	})

	t.Run("AsyncQueues", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/policies/policy-1/versions/v-clean/evaluate?async=true", nil)
		if rr.Code != http.StatusAccepted {
			t.Errorf("expected 202 for async evaluate, got %d", rr.Code)
		}
	})
}

func TestDecisionEndpoints(t *testing.T) {
	server := createTestServer(t)
	seedRules(t, server, "policy-1")

	ingestEvidence(t, server, "v-1", []EvidenceItemRequest{
		{ClauseCategory: "limitation_of_liability", Value: "capped", Confidence: 0.9},
		{ClauseCategory: "termination_notice", Value: 60, Confidence: 0.9},
	})
	evaluate(t, server, "policy-1", "v-1")

	t.Run("PreviewGo", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/versions/v-1/policies/policy-1/decision", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var dec domain.DealDecision
		if err := json.Unmarshal(rr.Body.Bytes(), &dec); err != nil {
			t.Fatalf("failed to parse decision: %v", err)
		}
		if dec.Outcome != domain.OutcomeGo {
			t.Errorf("expected GO, got %s", dec.Outcome)
		}
		if dec.State != domain.DecisionDraft {
			t.Errorf("expected DRAFT, got %s", dec.State)
		}
		if dec.Rationale == "" {
			t.Error("expected non-empty rationale")
		}
	})

	t.Run("FinalizeIsIdempotent", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/versions/v-1/policies/policy-1/decision/finalize", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("finalize failed: %d %s", rr.Code, rr.Body.String())
		}

		var first domain.DealDecision
		json.Unmarshal(rr.Body.Bytes(), &first)
		if first.State != domain.DecisionFinal {
			t.Fatalf("expected FINAL, got %s", first.State)
		}

		rr = doRequest(t, server, http.MethodPost, "/versions/v-1/policies/policy-1/decision/finalize", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("second finalize failed: %d", rr.Code)
		}

		var second domain.DealDecision
		json.Unmarshal(rr.Body.Bytes(), &second)
		if !second.FinalizedAt.Equal(first.FinalizedAt) {
			t.Error("second finalize changed the finalization timestamp")
		}
	})

	t.Run("FinalDecisionServedAsStored", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/versions/v-1/policies/policy-1/decision", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}

		var dec domain.DealDecision
		json.Unmarshal(rr.Body.Bytes(), &dec)
		if dec.State != domain.DecisionFinal {
			t.Errorf("expected stored FINAL decision, got %s", dec.State)
		}
	})

	t.Run("FinalizeWithoutAnalysis", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/versions/v-none/policies/policy-1/decision/finalize", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404 for unevaluated version, got %d", rr.Code)
		}
	})
}

func TestExceptionFlow(t *testing.T) {
	server := createTestServer(t)
	seedRules(t, server, "policy-1")

	ingestEvidence(t, server, "v-2", []EvidenceItemRequest{
		{ClauseCategory: "limitation_of_liability", Value: "capped", Confidence: 0.9},
		{ClauseCategory: "termination_notice", Value: 15, Confidence: 0.9},
	})
	assessment := evaluate(t, server, "policy-1", "v-2")
	if len(assessment.TopDrivers) == 0 {
		t.Fatal("expected at least one driver for the violation")
	}
	findingID := assessment.TopDrivers[0].FindingID

	// Decision before any exception: violation forces review.
	rr := doRequest(t, server, http.MethodGet, "/versions/v-2/policies/policy-1/decision", nil)
	var before domain.DealDecision
	json.Unmarshal(rr.Body.Bytes(), &before)
	if before.Outcome != domain.OutcomeNeedsReview {
		t.Fatalf("expected NEEDS_REVIEW before exception, got %s", before.Outcome)
	}

	// Request an exception for the violation finding.
	rr = doRequest(t, server, http.MethodPost, "/findings/"+findingID+"/exceptions",
		RequestExceptionRequest{Justification: "counsel approved the short notice period"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("exception request failed: %d %s", rr.Code, rr.Body.String())
	}

	var exc domain.Exception
	json.Unmarshal(rr.Body.Bytes(), &exc)

	// Re-requesting returns the same exception.
	rr = doRequest(t, server, http.MethodPost, "/findings/"+findingID+"/exceptions", nil)
	var again domain.Exception
	json.Unmarshal(rr.Body.Bytes(), &again)
	if again.ID != exc.ID {
		t.Error("re-request created a duplicate exception")
	}

	// Approve it.
	rr = doRequest(t, server, http.MethodPost, "/exceptions/"+exc.ID+"/approve", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("approve failed: %d %s", rr.Code, rr.Body.String())
	}

	// Approving twice conflicts.
	rr = doRequest(t, server, http.MethodPost, "/exceptions/"+exc.ID+"/approve", nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("expected 409 for double approve, got %d", rr.Code)
	}

	// The override restores the effective score and the decision flips to GO.
	rr = doRequest(t, server, http.MethodGet, "/versions/v-2/policies/policy-1/risk", nil)
	var after domain.RiskAssessment
	json.Unmarshal(rr.Body.Bytes(), &after)
	if after.RawScore != 75 {
		t.Errorf("expected raw score 75, got %d", after.RawScore)
	}
	if after.EffectiveScore != 100 {
		t.Errorf("expected effective score 100 after override, got %d", after.EffectiveScore)
	}

	rr = doRequest(t, server, http.MethodGet, "/versions/v-2/policies/policy-1/decision", nil)
	var dec domain.DealDecision
	json.Unmarshal(rr.Body.Bytes(), &dec)
	if dec.Outcome != domain.OutcomeGo {
		t.Errorf("expected GO after approved exception, got %s", dec.Outcome)
	}
	if dec.Counts.OverriddenViolations != 1 {
		t.Errorf("expected 1 overridden violation, got %d", dec.Counts.OverriddenViolations)
	}
}

func TestCompareEndpoint(t *testing.T) {
	server := createTestServer(t)
	seedRules(t, server, "policy-1")

	ingestEvidence(t, server, "v-old", []EvidenceItemRequest{
		{ClauseCategory: "limitation_of_liability", Value: "capped", Confidence: 0.9},
		{ClauseCategory: "termination_notice", Value: 45, Confidence: 0.9},
	})
	ingestEvidence(t, server, "v-new", []EvidenceItemRequest{
		{ClauseCategory: "limitation_of_liability", Value: "capped", Confidence: 0.9},
		{ClauseCategory: "termination_notice", Value: 15, Confidence: 0.9},
	})
	evaluate(t, server, "policy-1", "v-old")
	evaluate(t, server, "policy-1", "v-new")

	t.Run("Worsened", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/policies/policy-1/compare?from=v-old&to=v-new", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("compare failed: %d %s", rr.Code, rr.Body.String())
		}

		var cmp domain.VersionComparison
		if err := json.Unmarshal(rr.Body.Bytes(), &cmp); err != nil {
			t.Fatalf("failed to parse comparison: %v", err)
		}
		if cmp.Delta.Label != domain.DeltaWorsened {
			t.Errorf("expected WORSENED, got %s", cmp.Delta.Label)
		}
		if cmp.Delta.Raw != -25 {
			t.Errorf("expected raw delta -25, got %d", cmp.Delta.Raw)
		}
		if len(cmp.Changes) != 2 {
			t.Errorf("expected 2 changes, got %d", len(cmp.Changes))
		}
	})

	t.Run("MissingParams", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/policies/policy-1/compare?from=v-old", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("UnevaluatedSide", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/policies/policy-1/compare?from=v-old&to=v-missing", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})
}

func TestRuleEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("RejectsUnknownType", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/policies/policy-1/rules", CreateRuleRequest{
			ID:             "bad-rule",
			ClauseCategory: "x",
			Type:           "REGEX",
			Weight:         10,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for unknown type, got %d", rr.Code)
		}
	})

	t.Run("RejectsBadExpression", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/policies/policy-1/rules", CreateRuleRequest{
			ID:             "bad-expr",
			ClauseCategory: "payment_terms",
			Type:           domain.RuleExpression,
			Expression:     "value +",
			Weight:         10,
			Enabled:        true,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for invalid expression, got %d", rr.Code)
		}
	})

	t.Run("AcceptsExpressionRule", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/policies/policy-1/rules", CreateRuleRequest{
			ID:             "expr-rule",
			ClauseCategory: "payment_terms",
			Type:           domain.RuleExpression,
			Expression:     "present && confidence >= 0.8",
			Weight:         10,
			Severity:       domain.SeverityMedium,
			RiskCategory:   domain.RiskFinancial,
			Enabled:        true,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("GetAndDelete", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/rules/expr-rule", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}

		rr = doRequest(t, server, http.MethodDelete, "/rules/expr-rule", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}

		rr = doRequest(t, server, http.MethodGet, "/policies/policy-1/rules", nil)
		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 0 {
			t.Errorf("expected 0 enabled rules after delete, got %d", resp.Count)
		}
	})

	t.Run("Reload", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/rules/reload", ReloadRulesRequest{PolicyID: "policy-1"})
		if rr.Code != http.StatusOK {
			t.Errorf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("HealthCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("MissingWorkspaceHeader", func(t *testing.T) {
		server := createTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/policies/p/rules", nil)
		// No X-Workspace-ID header

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("WorkspaceMiddlewareExtractsID", func(t *testing.T) {
		var captured string

		handler := WorkspaceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured = GetWorkspaceID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(WorkspaceIDHeader, "my-workspace-123")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if captured != "my-workspace-123" {
			t.Errorf("expected workspace ID 'my-workspace-123', got '%s'", captured)
		}
	})

	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		// Should not panic
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}
