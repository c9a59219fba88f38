// Package config loads and validates the Covenant configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opensource-legal/covenant/internal/domain"
)

// FromEnv returns the tier-appropriate base configuration. COVENANT_TIER=pro
// selects the Pro defaults (PostgreSQL, Redis, NATS); anything else selects
// the Community defaults (SQLite, in-memory cache, channel bus).
func FromEnv() *domain.Config {
	if os.Getenv("COVENANT_TIER") == "pro" {
		return domain.ProConfig()
	}
	return domain.DefaultConfig()
}

// Load reads a YAML configuration file and layers it over the tier defaults.
// Environment variable references like ${COVENANT_DB_PASSWORD} are expanded
// before parsing. An empty path returns the defaults unchanged.
func Load(path string) (*domain.Config, error) {
	cfg := FromEnv()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the runtime cannot start with.
func Validate(cfg *domain.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	switch cfg.Tier {
	case domain.TierCommunity, domain.TierPro:
	default:
		return fmt.Errorf("unknown tier: %s", cfg.Tier)
	}

	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported repository driver: %s", cfg.Repository.Driver)
	}
	if cfg.Repository.Driver == "sqlite" && cfg.Repository.SQLitePath == "" {
		return fmt.Errorf("sqlite driver requires a database path")
	}

	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported cache type: %s", cfg.Cache.Type)
	}
	if cfg.Cache.Type == "redis" && cfg.Cache.RedisAddr == "" {
		return fmt.Errorf("redis cache requires an address")
	}

	switch cfg.EventBus.Type {
	case "channel", "nats":
	default:
		return fmt.Errorf("unsupported event bus type: %s", cfg.EventBus.Type)
	}
	if cfg.EventBus.Type == "nats" && cfg.EventBus.NATSUrl == "" {
		return fmt.Errorf("nats event bus requires a URL")
	}

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %s", cfg.Logging.Level)
	}

	return validateEngine(cfg.Engine)
}

func validateEngine(e domain.EngineConfig) error {
	if e.MaxScore <= 0 {
		return fmt.Errorf("engine max_score must be positive, got %d", e.MaxScore)
	}
	if e.RequiredConfidence < 0 || e.RequiredConfidence > 1 {
		return fmt.Errorf("engine required_confidence must be in [0,1], got %v", e.RequiredConfidence)
	}
	if e.ForbiddenConfidence < 0 || e.ForbiddenConfidence > 1 {
		return fmt.Errorf("engine forbidden_confidence must be in [0,1], got %v", e.ForbiddenConfidence)
	}
	if e.CriticalCap < 0 || e.CriticalCap > e.MaxScore {
		return fmt.Errorf("engine critical_cap must be in [0,%d], got %d", e.MaxScore, e.CriticalCap)
	}
	if e.ReviewMin > e.CompliantMin {
		return fmt.Errorf("engine review_min (%d) must not exceed compliant_min (%d)", e.ReviewMin, e.CompliantMin)
	}
	return nil
}
