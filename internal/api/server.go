// Package api provides the HTTP surface of the compliance engine.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-legal/covenant/internal/analysis"
	"github.com/opensource-legal/covenant/internal/decision"
	"github.com/opensource-legal/covenant/internal/domain"
	"github.com/opensource-legal/covenant/internal/engine"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, svc *analysis.Service, expr *engine.ExpressionEngine, decider *decision.Engine, engineCfg domain.EngineConfig, version string) *Server {
	handler := NewHandler(repo, cache, bus, svc, expr, decider, engineCfg, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no workspace required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (workspace required)
	router.Route("/", func(r chi.Router) {
		r.Use(WorkspaceMiddleware)

		// Evaluation pipeline
		r.Post("/policies/{policyID}/versions/{versionID}/evaluate", handler.Evaluate)
		r.Get("/versions/{versionID}/policies/{policyID}/risk", handler.Risk)

		// Deal decisions
		r.Get("/versions/{versionID}/policies/{policyID}/decision", handler.GetDecision)
		r.Post("/versions/{versionID}/policies/{policyID}/decision/finalize", handler.FinalizeDecision)

		// Version comparison
		r.Get("/policies/{policyID}/compare", handler.Compare)

		// Rule management
		r.Get("/policies/{policyID}/rules", handler.ListRules)
		r.Post("/policies/{policyID}/rules", handler.CreateRule)
		r.Get("/rules/{id}", handler.GetRule)
		r.Delete("/rules/{id}", handler.DeleteRule)
		r.Post("/rules/reload", handler.ReloadRules)

		// Evidence ingest
		r.Post("/versions/{versionID}/evidence", handler.IngestEvidence)

		// Exceptions
		r.Post("/findings/{findingID}/exceptions", handler.RequestException)
		r.Post("/exceptions/{exceptionID}/approve", handler.DecideException(domain.ExceptionApproved))
		r.Post("/exceptions/{exceptionID}/reject", handler.DecideException(domain.ExceptionRejected))
		r.Post("/exceptions/{exceptionID}/withdraw", handler.DecideException(domain.ExceptionWithdrawn))
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
