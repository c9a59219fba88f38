package repository

// Schema definitions for the Covenant database.
// Compatible with both SQLite and PostgreSQL.

const schemaRules = `
CREATE TABLE IF NOT EXISTS rules (
    id TEXT NOT NULL,
    workspace_id TEXT NOT NULL,
    policy_id TEXT NOT NULL,
    clause_category TEXT NOT NULL,
    type TEXT NOT NULL,
    expected_value TEXT,
    expression TEXT,
    weight INTEGER NOT NULL DEFAULT 1,
    severity TEXT,
    risk_category TEXT,
    recommendation TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, workspace_id)
);

CREATE INDEX IF NOT EXISTS idx_rules_workspace ON rules(workspace_id);
CREATE INDEX IF NOT EXISTS idx_rules_policy ON rules(workspace_id, policy_id);
CREATE INDEX IF NOT EXISTS idx_rules_enabled ON rules(workspace_id, enabled);
`

const schemaEvidence = `
CREATE TABLE IF NOT EXISTS evidence (
    id TEXT NOT NULL,
    workspace_id TEXT NOT NULL,
    version_id TEXT NOT NULL,
    clause_category TEXT NOT NULL,
    value TEXT,
    excerpt TEXT,
    confidence REAL NOT NULL,
    ingested_at TIMESTAMP NOT NULL,
    PRIMARY KEY (workspace_id, version_id, clause_category)
);

CREATE INDEX IF NOT EXISTS idx_evidence_version ON evidence(workspace_id, version_id);
`

const schemaFindings = `
CREATE TABLE IF NOT EXISTS findings (
    id TEXT NOT NULL,
    workspace_id TEXT NOT NULL,
    version_id TEXT NOT NULL,
    policy_id TEXT NOT NULL,
    rule_id TEXT NOT NULL,
    clause_category TEXT NOT NULL,
    status TEXT NOT NULL,
    severity TEXT,
    risk_category TEXT,
    recommendation TEXT,
    weight INTEGER NOT NULL,
    value TEXT,
    excerpt TEXT,
    confidence REAL NOT NULL,
    unclear_reason TEXT,
    evaluated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (workspace_id, version_id, policy_id, rule_id)
);

CREATE INDEX IF NOT EXISTS idx_findings_id ON findings(workspace_id, id);
CREATE INDEX IF NOT EXISTS idx_findings_version ON findings(workspace_id, version_id, policy_id);
CREATE INDEX IF NOT EXISTS idx_findings_status ON findings(workspace_id, status);
`

const schemaComplianceRecords = `
CREATE TABLE IF NOT EXISTS compliance_records (
    workspace_id TEXT NOT NULL,
    version_id TEXT NOT NULL,
    policy_id TEXT NOT NULL,
    raw_score INTEGER NOT NULL,
    status TEXT NOT NULL,
    evaluated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (workspace_id, version_id, policy_id)
);
`

const schemaExceptions = `
CREATE TABLE IF NOT EXISTS exceptions (
    id TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL,
    finding_id TEXT NOT NULL,
    version_id TEXT NOT NULL,
    policy_id TEXT NOT NULL,
    status TEXT NOT NULL,
    justification TEXT,
    requested_at TIMESTAMP NOT NULL,
    decided_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_exceptions_workspace ON exceptions(workspace_id);
CREATE INDEX IF NOT EXISTS idx_exceptions_finding ON exceptions(workspace_id, finding_id);
CREATE INDEX IF NOT EXISTS idx_exceptions_version ON exceptions(workspace_id, version_id, policy_id);
CREATE INDEX IF NOT EXISTS idx_exceptions_status ON exceptions(workspace_id, status);
`

const schemaDecisions = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT NOT NULL,
    workspace_id TEXT NOT NULL,
    version_id TEXT NOT NULL,
    policy_id TEXT NOT NULL,
    outcome TEXT NOT NULL,
    state TEXT NOT NULL,
    effective_score INTEGER NOT NULL,
    counts TEXT NOT NULL,
    top_drivers TEXT,
    rationale TEXT NOT NULL,
    computed_at TIMESTAMP NOT NULL,
    finalized_at TIMESTAMP,
    PRIMARY KEY (workspace_id, version_id, policy_id)
);

CREATE INDEX IF NOT EXISTS idx_decisions_state ON decisions(workspace_id, state);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRules,
		schemaEvidence,
		schemaFindings,
		schemaComplianceRecords,
		schemaExceptions,
		schemaDecisions,
	}
}
