package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require workspaceID for strict workspace isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, workspaceID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, workspaceID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, workspaceID string, key string) error

	// GetAnalysis retrieves a cached analysis snapshot for a
	// (version, policy) pair.
	GetAnalysis(ctx context.Context, workspaceID string, versionID string, policyID string) (*AnalysisSnapshot, error)

	// SetAnalysis caches an analysis snapshot after an evaluation.
	SetAnalysis(ctx context.Context, workspaceID string, versionID string, policyID string, snap *AnalysisSnapshot, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used to track re-evaluation churn per version in a time window.
	IncrementCounter(ctx context.Context, workspaceID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// AnalysisCacheKey is the cache key for an analysis snapshot. Exposed so
// callers can invalidate a snapshot directly when overrides change.
func AnalysisCacheKey(versionID, policyID string) string {
	return "analysis:" + versionID + ":" + policyID
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `yaml:"type"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int           `yaml:"local_max_size"`
	LocalTTL     time.Duration `yaml:"local_ttl"`

	// Redis settings (Pro tier)
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Two-phase settings
	EnableTwoPhase bool `yaml:"enable_two_phase"` // If true, check local first, then Redis
}
