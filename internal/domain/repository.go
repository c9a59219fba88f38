// Package domain defines the core types and interfaces for Covenant.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require workspaceID for strict workspace isolation.
type Repository interface {
	// Rule operations
	SaveRule(ctx context.Context, workspaceID string, rule *Rule) error
	GetRule(ctx context.Context, workspaceID string, ruleID string) (*Rule, error)
	ListRules(ctx context.Context, workspaceID string, policyID string) ([]*Rule, error)
	DeleteRule(ctx context.Context, workspaceID string, ruleID string) error

	// ListExpressionRules returns every enabled EXPRESSION rule across all
	// workspaces, for precompiling at startup.
	ListExpressionRules(ctx context.Context) ([]*Rule, error)

	// Evidence operations (upsert per clause category per version)
	SaveEvidence(ctx context.Context, workspaceID string, item *EvidenceItem) error
	ListEvidence(ctx context.Context, workspaceID string, versionID string) ([]*EvidenceItem, error)

	// Finding operations. ReplaceFindings swaps the full finding set for a
	// (version, policy) pair in one transaction, preserving finding ids for
	// rules that already had one so exceptions stay attached.
	ReplaceFindings(ctx context.Context, workspaceID string, versionID string, policyID string, findings []*Finding) error
	ListFindings(ctx context.Context, workspaceID string, versionID string, policyID string) ([]*Finding, error)
	GetFinding(ctx context.Context, workspaceID string, findingID string) (*Finding, error)

	// Compliance records
	SaveComplianceRecord(ctx context.Context, workspaceID string, rec *ComplianceRecord) error
	GetComplianceRecord(ctx context.Context, workspaceID string, versionID string, policyID string) (*ComplianceRecord, error)

	// Exception operations. SaveException is idempotent for re-requests: an
	// active exception for the same finding is returned unchanged.
	SaveException(ctx context.Context, workspaceID string, exc *Exception) (*Exception, error)
	GetException(ctx context.Context, workspaceID string, exceptionID string) (*Exception, error)
	UpdateExceptionStatus(ctx context.Context, workspaceID string, exceptionID string, status ExceptionStatus) (*Exception, error)
	ApprovedExceptionFindingIDs(ctx context.Context, workspaceID string, versionID string, policyID string) (map[string]bool, error)
	CountExceptions(ctx context.Context, workspaceID string, versionID string, policyID string) (ExceptionCounts, error)

	// Decision operations. SaveDecision refuses to overwrite a FINAL record.
	// FinalizeDecision is idempotent: finalizing a FINAL decision returns the
	// existing record unchanged.
	SaveDecision(ctx context.Context, workspaceID string, dec *DealDecision) error
	GetDecision(ctx context.Context, workspaceID string, versionID string, policyID string) (*DealDecision, error)
	FinalizeDecision(ctx context.Context, workspaceID string, versionID string, policyID string) (*DealDecision, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `yaml:"driver"`

	// SQLite specific
	SQLitePath string `yaml:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `yaml:"postgres_host"`
	PostgresPort     int    `yaml:"postgres_port"`
	PostgresUser     string `yaml:"postgres_user"`
	PostgresPassword string `yaml:"postgres_password"`
	PostgresDB       string `yaml:"postgres_db"`
	PostgresSSLMode  string `yaml:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}
