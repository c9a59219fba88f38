// Covenant - Contract compliance decisions you can replay.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-legal/covenant/internal/analysis"
	"github.com/opensource-legal/covenant/internal/api"
	"github.com/opensource-legal/covenant/internal/bus"
	"github.com/opensource-legal/covenant/internal/cache"
	"github.com/opensource-legal/covenant/internal/config"
	"github.com/opensource-legal/covenant/internal/decision"
	"github.com/opensource-legal/covenant/internal/domain"
	"github.com/opensource-legal/covenant/internal/engine"
	"github.com/opensource-legal/covenant/internal/repository"
	"github.com/opensource-legal/covenant/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", os.Getenv("COVENANT_CONFIG"), "path to YAML configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting covenant",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Expression Engine and precompile stored EXPRESSION rules
	expr, err := engine.NewExpressionEngine()
	if err != nil {
		slog.Error("failed to initialize expression engine", "error", err)
		os.Exit(1)
	}
	if err := loadExpressionRules(ctx, repo, expr); err != nil {
		slog.Error("failed to load expression rules", "error", err)
		os.Exit(1)
	}
	slog.Info("expression engine initialized", "rules_count", expr.Count())

	// Initialize Scorer and shared analysis pipeline
	scorer := engine.NewScorer(cfg.Engine, expr)
	svc := analysis.NewService(repo, cacheImpl, busImpl, scorer, cfg.Engine)

	// Initialize Decision Engine
	decider := decision.NewEngine(cfg.Engine)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("COVENANT_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, svc)

		workspaceIDs := []string{}
		if envWorkspaces := os.Getenv("COVENANT_WORKSPACES"); envWorkspaces != "" {
			workspaceIDs = strings.Split(envWorkspaces, ",")
		}

		workerCfg := worker.Config{
			WorkspaceIDs: workspaceIDs,
			WorkerCount:  5,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "workspace_count", len(workspaceIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, svc, expr, decider, cfg.Engine, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("covenant is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("covenant shutdown complete")
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// loadExpressionRules precompiles stored EXPRESSION rules so evaluation does
// not depend on rules having been created through this process's API.
func loadExpressionRules(ctx context.Context, repo domain.Repository, expr *engine.ExpressionEngine) error {
	rules, err := repo.ListExpressionRules(ctx)
	if err != nil {
		slog.Warn("failed to list expression rules from database", "error", err)
		return nil // Start empty - rules can be added via API
	}

	if len(rules) > 0 {
		slog.Info("loading expression rules from database", "count", len(rules))
		return expr.LoadRules(rules)
	}

	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("              COVENANT")
	fmt.Println("      Contract Compliance Engine")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /policies/{policy}/versions/{version}/evaluate  - Evaluate a contract version")
	fmt.Println("    GET  /versions/{version}/policies/{policy}/risk      - Risk assessment")
	fmt.Println("    GET  /versions/{version}/policies/{policy}/decision  - Decision preview")
	fmt.Println("    POST .../decision/finalize                           - Finalize a decision")
	fmt.Println("    GET  /policies/{policy}/compare?from=&to=            - Compare two versions")
	fmt.Println("    POST /versions/{version}/evidence                    - Ingest extracted evidence")
	fmt.Println("    GET|POST /policies/{policy}/rules                    - List / create rules")
	fmt.Println("    POST /rules/reload                                   - Hot-reload expression rules")
	fmt.Println("    POST /findings/{finding}/exceptions                  - Request an exception")
	fmt.Println("    POST /exceptions/{id}/{approve|reject|withdraw}      - Decide an exception")
	fmt.Println("    GET  /health                                         - Health check")
	fmt.Println()
}
