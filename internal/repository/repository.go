// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-legal/covenant/internal/domain"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrDecisionFinal = errors.New("decision is final")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveRule stores a rule with workspace isolation, upserting by rule id.
func (r *SQLRepository) SaveRule(ctx context.Context, workspaceID string, rule *domain.Rule) error {
	if workspaceID == "" {
		return fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}
	if rule.Weight <= 0 {
		return fmt.Errorf("%w: rule weight must be positive", ErrInvalidInput)
	}

	expected, _ := json.Marshal(rule.ExpectedValue)

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rules (
			id, workspace_id, policy_id, clause_category, type, expected_value,
			expression, weight, severity, risk_category, recommendation, enabled,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, workspace_id) DO UPDATE SET
			policy_id = excluded.policy_id,
			clause_category = excluded.clause_category,
			type = excluded.type,
			expected_value = excluded.expected_value,
			expression = excluded.expression,
			weight = excluded.weight,
			severity = excluded.severity,
			risk_category = excluded.risk_category,
			recommendation = excluded.recommendation,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, workspaceID, rule.PolicyID, rule.ClauseCategory, string(rule.Type),
		string(expected), rule.Expression, rule.Weight,
		string(rule.Severity), string(rule.RiskCategory), rule.Recommendation, enabled,
		now, now,
	)
	return err
}

// GetRule retrieves a rule by id with workspace isolation.
func (r *SQLRepository) GetRule(ctx context.Context, workspaceID string, ruleID string) (*domain.Rule, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, workspace_id, policy_id, clause_category, type, expected_value,
			   expression, weight, severity, risk_category, recommendation, enabled
		FROM rules
		WHERE workspace_id = ? AND id = ?
	`

	rule, err := scanRule(r.db.QueryRowContext(ctx, r.rebind(query), workspaceID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListRules retrieves all enabled rules of a policy, ordered by clause
// category for stable evaluation order.
func (r *SQLRepository) ListRules(ctx context.Context, workspaceID string, policyID string) ([]*domain.Rule, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, workspace_id, policy_id, clause_category, type, expected_value,
			   expression, weight, severity, risk_category, recommendation, enabled
		FROM rules
		WHERE workspace_id = ? AND policy_id = ? AND enabled = 1
		ORDER BY clause_category, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), workspaceID, policyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// ListExpressionRules returns every enabled EXPRESSION rule across all
// workspaces, for precompiling at startup.
func (r *SQLRepository) ListExpressionRules(ctx context.Context) ([]*domain.Rule, error) {
	query := `
		SELECT id, workspace_id, policy_id, clause_category, type, expected_value,
			   expression, weight, severity, risk_category, recommendation, enabled
		FROM rules
		WHERE type = ? AND enabled = 1
		ORDER BY workspace_id, policy_id, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), string(domain.RuleExpression))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// DeleteRule disables a rule so historical findings keep their provenance.
func (r *SQLRepository) DeleteRule(ctx context.Context, workspaceID string, ruleID string) error {
	if workspaceID == "" {
		return fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}

	query := `
		UPDATE rules
		SET enabled = 0, updated_at = ?
		WHERE workspace_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), workspaceID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveEvidence upserts one evidence item, keyed by clause category within the
// version. The excerpt is truncated to the storage cap.
func (r *SQLRepository) SaveEvidence(ctx context.Context, workspaceID string, item *domain.EvidenceItem) error {
	if workspaceID == "" {
		return fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}
	if item.VersionID == "" || item.ClauseCategory == "" {
		return fmt.Errorf("%w: versionID and clauseCategory are required", ErrInvalidInput)
	}

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	excerpt := item.Excerpt
	if len([]rune(excerpt)) > domain.MaxExcerptLen {
		excerpt = string([]rune(excerpt)[:domain.MaxExcerptLen])
	}

	value, _ := json.Marshal(item.Value)

	query := `
		INSERT INTO evidence (
			id, workspace_id, version_id, clause_category, value, excerpt, confidence, ingested_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id, version_id, clause_category) DO UPDATE SET
			value = excluded.value,
			excerpt = excluded.excerpt,
			confidence = excluded.confidence,
			ingested_at = excluded.ingested_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		item.ID, workspaceID, item.VersionID, item.ClauseCategory,
		string(value), excerpt, item.Confidence, time.Now().UTC(),
	)
	return err
}

// ListEvidence retrieves all evidence items for a contract version.
func (r *SQLRepository) ListEvidence(ctx context.Context, workspaceID string, versionID string) ([]*domain.EvidenceItem, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, workspace_id, version_id, clause_category, value, excerpt, confidence, ingested_at
		FROM evidence
		WHERE workspace_id = ? AND version_id = ?
		ORDER BY clause_category
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), workspaceID, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.EvidenceItem
	for rows.Next() {
		var item domain.EvidenceItem
		var value string

		if err := rows.Scan(
			&item.ID, &item.WorkspaceID, &item.VersionID, &item.ClauseCategory,
			&value, &item.Excerpt, &item.Confidence, &item.IngestedAt,
		); err != nil {
			return nil, err
		}

		if value != "" && value != "null" {
			json.Unmarshal([]byte(value), &item.Value)
		}
		items = append(items, &item)
	}

	return items, rows.Err()
}

// ReplaceFindings swaps the full finding set for a (version, policy) pair in
// one transaction. Finding ids are preserved per rule so approved exceptions
// stay attached across re-evaluations.
func (r *SQLRepository) ReplaceFindings(ctx context.Context, workspaceID string, versionID string, policyID string, findings []*domain.Finding) error {
	if workspaceID == "" {
		return fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Remember existing ids by rule before wiping the set.
	existing := make(map[string]string)
	rows, err := tx.QueryContext(ctx, r.rebind(`
		SELECT rule_id, id FROM findings
		WHERE workspace_id = ? AND version_id = ? AND policy_id = ?
	`), workspaceID, versionID, policyID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var ruleID, id string
		if err := rows.Scan(&ruleID, &id); err != nil {
			rows.Close()
			return err
		}
		existing[ruleID] = id
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, r.rebind(`
		DELETE FROM findings
		WHERE workspace_id = ? AND version_id = ? AND policy_id = ?
	`), workspaceID, versionID, policyID); err != nil {
		return err
	}

	insert := r.rebind(`
		INSERT INTO findings (
			id, workspace_id, version_id, policy_id, rule_id, clause_category,
			status, severity, risk_category, recommendation, weight,
			value, excerpt, confidence, unclear_reason, evaluated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	now := time.Now().UTC()
	for _, f := range findings {
		id := existing[f.RuleID]
		if id == "" {
			id = f.ID
		}
		if id == "" {
			id = uuid.New().String()
		}
		f.ID = id
		f.WorkspaceID = workspaceID
		if f.EvaluatedAt.IsZero() {
			f.EvaluatedAt = now
		}

		value, _ := json.Marshal(f.Value)

		if _, err := tx.ExecContext(ctx, insert,
			f.ID, workspaceID, versionID, policyID, f.RuleID, f.ClauseCategory,
			string(f.Status), string(f.Severity), string(f.RiskCategory),
			f.Recommendation, f.Weight,
			string(value), f.Excerpt, f.Confidence, f.UnclearReason, f.EvaluatedAt,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListFindings retrieves the findings for a (version, policy) pair in stable
// clause-category order.
func (r *SQLRepository) ListFindings(ctx context.Context, workspaceID string, versionID string, policyID string) ([]*domain.Finding, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, workspace_id, version_id, policy_id, rule_id, clause_category,
			   status, severity, risk_category, recommendation, weight,
			   value, excerpt, confidence, unclear_reason, evaluated_at
		FROM findings
		WHERE workspace_id = ? AND version_id = ? AND policy_id = ?
		ORDER BY clause_category, rule_id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), workspaceID, versionID, policyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var findings []*domain.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		findings = append(findings, f)
	}

	return findings, rows.Err()
}

// GetFinding retrieves a finding by id with workspace isolation.
func (r *SQLRepository) GetFinding(ctx context.Context, workspaceID string, findingID string) (*domain.Finding, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, workspace_id, version_id, policy_id, rule_id, clause_category,
			   status, severity, risk_category, recommendation, weight,
			   value, excerpt, confidence, unclear_reason, evaluated_at
		FROM findings
		WHERE workspace_id = ? AND id = ?
	`

	f, err := scanFinding(r.db.QueryRowContext(ctx, r.rebind(query), workspaceID, findingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return f, err
}

// SaveComplianceRecord upserts the compliance record for a (version, policy).
func (r *SQLRepository) SaveComplianceRecord(ctx context.Context, workspaceID string, rec *domain.ComplianceRecord) error {
	if workspaceID == "" {
		return fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO compliance_records (
			workspace_id, version_id, policy_id, raw_score, status, evaluated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id, version_id, policy_id) DO UPDATE SET
			raw_score = excluded.raw_score,
			status = excluded.status,
			evaluated_at = excluded.evaluated_at
	`

	evaluatedAt := rec.EvaluatedAt
	if evaluatedAt.IsZero() {
		evaluatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		workspaceID, rec.VersionID, rec.PolicyID, rec.RawScore, string(rec.Status), evaluatedAt,
	)
	return err
}

// GetComplianceRecord retrieves the compliance record for a (version, policy).
func (r *SQLRepository) GetComplianceRecord(ctx context.Context, workspaceID string, versionID string, policyID string) (*domain.ComplianceRecord, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}

	query := `
		SELECT workspace_id, version_id, policy_id, raw_score, status, evaluated_at
		FROM compliance_records
		WHERE workspace_id = ? AND version_id = ? AND policy_id = ?
	`

	var rec domain.ComplianceRecord
	var status string

	err := r.db.QueryRowContext(ctx, r.rebind(query), workspaceID, versionID, policyID).Scan(
		&rec.WorkspaceID, &rec.VersionID, &rec.PolicyID, &rec.RawScore, &status, &rec.EvaluatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.Status = domain.RecordStatus(status)
	return &rec, nil
}

// SaveException records an exception request. Idempotent for re-requests: an
// exception already REQUESTED or APPROVED for the finding is returned
// unchanged instead of creating a duplicate.
func (r *SQLRepository) SaveException(ctx context.Context, workspaceID string, exc *domain.Exception) (*domain.Exception, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}
	if exc.FindingID == "" {
		return nil, fmt.Errorf("%w: findingID is required", ErrInvalidInput)
	}

	active, err := r.activeException(ctx, workspaceID, exc.FindingID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return active, nil
	}

	if exc.ID == "" {
		exc.ID = uuid.New().String()
	}
	exc.WorkspaceID = workspaceID
	exc.Status = domain.ExceptionRequested
	exc.RequestedAt = time.Now().UTC()

	query := `
		INSERT INTO exceptions (
			id, workspace_id, finding_id, version_id, policy_id, status, justification, requested_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		exc.ID, workspaceID, exc.FindingID, exc.VersionID, exc.PolicyID,
		string(exc.Status), exc.Justification, exc.RequestedAt,
	)
	if err != nil {
		return nil, err
	}

	return exc, nil
}

func (r *SQLRepository) activeException(ctx context.Context, workspaceID, findingID string) (*domain.Exception, error) {
	query := `
		SELECT id, workspace_id, finding_id, version_id, policy_id, status, justification, requested_at, decided_at
		FROM exceptions
		WHERE workspace_id = ? AND finding_id = ? AND status IN (?, ?)
		ORDER BY requested_at DESC
		LIMIT 1
	`

	exc, err := scanException(r.db.QueryRowContext(ctx, r.rebind(query),
		workspaceID, findingID, string(domain.ExceptionRequested), string(domain.ExceptionApproved)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return exc, err
}

// GetException retrieves an exception by id with workspace isolation.
func (r *SQLRepository) GetException(ctx context.Context, workspaceID string, exceptionID string) (*domain.Exception, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, workspace_id, finding_id, version_id, policy_id, status, justification, requested_at, decided_at
		FROM exceptions
		WHERE workspace_id = ? AND id = ?
	`

	exc, err := scanException(r.db.QueryRowContext(ctx, r.rebind(query), workspaceID, exceptionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return exc, err
}

// UpdateExceptionStatus moves an exception through its lifecycle and stamps
// the decision time.
func (r *SQLRepository) UpdateExceptionStatus(ctx context.Context, workspaceID string, exceptionID string, status domain.ExceptionStatus) (*domain.Exception, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}

	query := `
		UPDATE exceptions
		SET status = ?, decided_at = ?
		WHERE workspace_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		string(status), time.Now().UTC(), workspaceID, exceptionID)
	if err != nil {
		return nil, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrNotFound
	}

	return r.GetException(ctx, workspaceID, exceptionID)
}

// ApprovedExceptionFindingIDs returns the set of finding ids with an APPROVED
// exception for a (version, policy) pair.
func (r *SQLRepository) ApprovedExceptionFindingIDs(ctx context.Context, workspaceID string, versionID string, policyID string) (map[string]bool, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}

	query := `
		SELECT finding_id
		FROM exceptions
		WHERE workspace_id = ? AND version_id = ? AND policy_id = ? AND status = ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query),
		workspaceID, versionID, policyID, string(domain.ExceptionApproved))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}

	return ids, rows.Err()
}

// CountExceptions summarizes open and approved exceptions for a
// (version, policy) pair.
func (r *SQLRepository) CountExceptions(ctx context.Context, workspaceID string, versionID string, policyID string) (domain.ExceptionCounts, error) {
	var counts domain.ExceptionCounts
	if workspaceID == "" {
		return counts, fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}

	query := `
		SELECT status, COUNT(*)
		FROM exceptions
		WHERE workspace_id = ? AND version_id = ? AND policy_id = ?
		GROUP BY status
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), workspaceID, versionID, policyID)
	if err != nil {
		return counts, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return counts, err
		}
		switch domain.ExceptionStatus(status) {
		case domain.ExceptionRequested:
			counts.Open = n
		case domain.ExceptionApproved:
			counts.Approved = n
		}
	}

	return counts, rows.Err()
}

// SaveDecision upserts a decision preview. A FINAL record is never
// overwritten; attempting to do so returns ErrDecisionFinal.
func (r *SQLRepository) SaveDecision(ctx context.Context, workspaceID string, dec *domain.DealDecision) error {
	if workspaceID == "" {
		return fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}

	existing, err := r.GetDecision(ctx, workspaceID, dec.VersionID, dec.PolicyID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if existing != nil && existing.Final() {
		return ErrDecisionFinal
	}

	if dec.ID == "" {
		if existing != nil {
			dec.ID = existing.ID
		} else {
			dec.ID = uuid.New().String()
		}
	}
	dec.WorkspaceID = workspaceID
	if dec.ComputedAt.IsZero() {
		dec.ComputedAt = time.Now().UTC()
	}

	counts, _ := json.Marshal(dec.Counts)
	drivers, _ := json.Marshal(dec.TopDrivers)

	query := `
		INSERT INTO decisions (
			id, workspace_id, version_id, policy_id, outcome, state,
			effective_score, counts, top_drivers, rationale, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id, version_id, policy_id) DO UPDATE SET
			outcome = excluded.outcome,
			state = excluded.state,
			effective_score = excluded.effective_score,
			counts = excluded.counts,
			top_drivers = excluded.top_drivers,
			rationale = excluded.rationale,
			computed_at = excluded.computed_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		dec.ID, workspaceID, dec.VersionID, dec.PolicyID,
		string(dec.Outcome), string(dec.State),
		dec.EffectiveScore, string(counts), string(drivers), dec.Rationale, dec.ComputedAt,
	)
	return err
}

// GetDecision retrieves the decision for a (version, policy) pair.
func (r *SQLRepository) GetDecision(ctx context.Context, workspaceID string, versionID string, policyID string) (*domain.DealDecision, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, workspace_id, version_id, policy_id, outcome, state,
			   effective_score, counts, top_drivers, rationale, computed_at, finalized_at
		FROM decisions
		WHERE workspace_id = ? AND version_id = ? AND policy_id = ?
	`

	var dec domain.DealDecision
	var outcome, state, counts string
	var drivers sql.NullString
	var finalizedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, r.rebind(query), workspaceID, versionID, policyID).Scan(
		&dec.ID, &dec.WorkspaceID, &dec.VersionID, &dec.PolicyID, &outcome, &state,
		&dec.EffectiveScore, &counts, &drivers, &dec.Rationale, &dec.ComputedAt, &finalizedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	dec.Outcome = domain.Outcome(outcome)
	dec.State = domain.DecisionState(state)
	json.Unmarshal([]byte(counts), &dec.Counts)
	if drivers.Valid && drivers.String != "" {
		json.Unmarshal([]byte(drivers.String), &dec.TopDrivers)
	}
	if finalizedAt.Valid {
		dec.FinalizedAt = finalizedAt.Time
	}

	return &dec, nil
}

// FinalizeDecision marks a decision FINAL. Idempotent: finalizing an
// already-FINAL decision returns the existing record unchanged.
func (r *SQLRepository) FinalizeDecision(ctx context.Context, workspaceID string, versionID string, policyID string) (*domain.DealDecision, error) {
	dec, err := r.GetDecision(ctx, workspaceID, versionID, policyID)
	if err != nil {
		return nil, err
	}
	if dec.Final() {
		return dec, nil
	}

	query := `
		UPDATE decisions
		SET state = ?, finalized_at = ?
		WHERE workspace_id = ? AND version_id = ? AND policy_id = ? AND state != ?
	`

	now := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, r.rebind(query),
		string(domain.DecisionFinal), now,
		workspaceID, versionID, policyID, string(domain.DecisionFinal),
	); err != nil {
		return nil, err
	}

	return r.GetDecision(ctx, workspaceID, versionID, policyID)
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*domain.Rule, error) {
	var rule domain.Rule
	var ruleType, severity, riskCategory, expected string
	var enabled int

	if err := row.Scan(
		&rule.ID, &rule.WorkspaceID, &rule.PolicyID, &rule.ClauseCategory, &ruleType,
		&expected, &rule.Expression, &rule.Weight, &severity, &riskCategory,
		&rule.Recommendation, &enabled,
	); err != nil {
		return nil, err
	}

	rule.Type = domain.RuleType(ruleType)
	rule.Severity = domain.Severity(severity)
	rule.RiskCategory = domain.RiskCategory(riskCategory)
	rule.Enabled = enabled == 1
	if expected != "" && expected != "null" {
		json.Unmarshal([]byte(expected), &rule.ExpectedValue)
	}

	return &rule, nil
}

func scanFinding(row rowScanner) (*domain.Finding, error) {
	var f domain.Finding
	var status, severity, riskCategory, value string

	if err := row.Scan(
		&f.ID, &f.WorkspaceID, &f.VersionID, &f.PolicyID, &f.RuleID, &f.ClauseCategory,
		&status, &severity, &riskCategory, &f.Recommendation, &f.Weight,
		&value, &f.Excerpt, &f.Confidence, &f.UnclearReason, &f.EvaluatedAt,
	); err != nil {
		return nil, err
	}

	f.Status = domain.ComplianceStatus(status)
	f.Severity = domain.Severity(severity)
	f.RiskCategory = domain.RiskCategory(riskCategory)
	if value != "" && value != "null" {
		json.Unmarshal([]byte(value), &f.Value)
	}

	return &f, nil
}

func scanException(row rowScanner) (*domain.Exception, error) {
	var exc domain.Exception
	var status string
	var decidedAt sql.NullTime

	if err := row.Scan(
		&exc.ID, &exc.WorkspaceID, &exc.FindingID, &exc.VersionID, &exc.PolicyID,
		&status, &exc.Justification, &exc.RequestedAt, &decidedAt,
	); err != nil {
		return nil, err
	}

	exc.Status = domain.ExceptionStatus(status)
	if decidedAt.Valid {
		exc.DecidedAt = decidedAt.Time
	}

	return &exc, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
