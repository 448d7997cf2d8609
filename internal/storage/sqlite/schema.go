package sqlite

const schema = `
-- Inbox items table (protected)
CREATE TABLE IF NOT EXISTS inbox_items (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'proposed',
    severity TEXT NOT NULL DEFAULT 'medium',
    proposed_at DATETIME NOT NULL,
    resurfaced_at DATETIME,
    read_at DATETIME,
    snooze_until DATETIME,
    dismissed_at DATETIME,
    dismissed_by TEXT DEFAULT '',
    dismissed_reason TEXT DEFAULT '',
    suppression_key TEXT DEFAULT '',
    resolved_at DATETIME,
    resolved_issue_id TEXT DEFAULT '',
    resolution_reason TEXT DEFAULT '',
    underlying_issue_id TEXT DEFAULT '',
    underlying_signal_id TEXT DEFAULT '',
    client_id TEXT DEFAULT '',
    brand_id TEXT DEFAULT '',
    engagement_id TEXT DEFAULT '',
    signal_source TEXT DEFAULT '',
    signal_rule TEXT DEFAULT '',
    evidence TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    -- Defense in depth: the Go guard layer is authoritative, these CHECKs
    -- catch writers that bypass it entirely.
    CHECK ((underlying_issue_id = '') <> (underlying_signal_id = '')),
    CHECK (state <> 'snoozed' OR snooze_until IS NOT NULL),
    CHECK (state NOT IN ('dismissed', 'linked_to_issue') OR resolved_at IS NOT NULL),
    CHECK (state <> 'dismissed' OR (dismissed_at IS NOT NULL AND dismissed_by <> '' AND suppression_key <> ''))
);

CREATE INDEX IF NOT EXISTS idx_inbox_items_state ON inbox_items(state);
CREATE INDEX IF NOT EXISTS idx_inbox_items_issue ON inbox_items(underlying_issue_id);
CREATE INDEX IF NOT EXISTS idx_inbox_items_snooze ON inbox_items(state, snooze_until);
CREATE INDEX IF NOT EXISTS idx_inbox_items_client ON inbox_items(client_id, engagement_id);

-- Issues table (protected)
CREATE TABLE IF NOT EXISTS issues (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'detected',
    severity TEXT NOT NULL DEFAULT 'medium',
    title TEXT NOT NULL CHECK(length(title) <= 500),
    client_id TEXT DEFAULT '',
    brand_id TEXT DEFAULT '',
    engagement_id TEXT DEFAULT '',
    aggregation_key TEXT DEFAULT '',
    detected_at DATETIME NOT NULL,
    surfaced_at DATETIME,
    acknowledged_at DATETIME,
    acknowledged_by TEXT DEFAULT '',
    assigned_at DATETIME,
    assigned_to TEXT DEFAULT '',
    snoozed_at DATETIME,
    snoozed_by TEXT DEFAULT '',
    snooze_until DATETIME,
    suppressed INTEGER NOT NULL DEFAULT 0,
    suppressed_at DATETIME,
    suppressed_by TEXT DEFAULT '',
    escalated INTEGER NOT NULL DEFAULT 0,
    escalated_at DATETIME,
    escalated_by TEXT DEFAULT '',
    resolved_at DATETIME,
    resolved_by TEXT DEFAULT '',
    regression_watch_until DATETIME,
    regressed_at DATETIME,
    closed_at DATETIME,
    evidence TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    -- The resolve action logs 'resolved' in the audit trail but persists
    -- regression_watch in the same write; the literal never lands here.
    CHECK (state <> 'resolved'),
    CHECK (state <> 'snoozed' OR snooze_until IS NOT NULL),
    CHECK (state <> 'regression_watch' OR (resolved_at IS NOT NULL AND regression_watch_until IS NOT NULL)),
    CHECK ((state = 'closed') = (closed_at IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_issues_state ON issues(state);
CREATE INDEX IF NOT EXISTS idx_issues_snooze ON issues(state, snooze_until);
CREATE INDEX IF NOT EXISTS idx_issues_watch ON issues(state, regression_watch_until);
CREATE INDEX IF NOT EXISTS idx_issues_agg ON issues(aggregation_key);
CREATE INDEX IF NOT EXISTS idx_issues_client ON issues(client_id, engagement_id);

-- Suppression rules table (protected)
CREATE TABLE IF NOT EXISTS suppression_rules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    suppression_key TEXT NOT NULL UNIQUE,
    item_type TEXT NOT NULL,
    created_by TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    expires_at DATETIME NOT NULL,
    reason TEXT DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_suppression_expires ON suppression_rules(expires_at);

-- Audit log (append-only; UPDATE/DELETE rejected by triggers below)
CREATE TABLE IF NOT EXISTS audit_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    at DATETIME NOT NULL,
    actor TEXT NOT NULL,
    request_id TEXT NOT NULL,
    source TEXT NOT NULL,
    build_tag TEXT DEFAULT '',
    table_name TEXT NOT NULL,
    op TEXT NOT NULL CHECK (op IN ('INSERT', 'UPDATE', 'DELETE')),
    row_id TEXT NOT NULL,
    before_json TEXT DEFAULT '',
    after_json TEXT DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_audit_row ON audit_log(table_name, row_id);
CREATE INDEX IF NOT EXISTS idx_audit_request ON audit_log(request_id);
CREATE INDEX IF NOT EXISTS idx_audit_at ON audit_log(at);

CREATE TRIGGER IF NOT EXISTS audit_log_no_update
BEFORE UPDATE ON audit_log
BEGIN
    SELECT RAISE(ABORT, 'audit log is append-only');
END;

CREATE TRIGGER IF NOT EXISTS audit_log_no_delete
BEFORE DELETE ON audit_log
BEGIN
    SELECT RAISE(ABORT, 'audit log is append-only');
END;

-- Signal recurrence markers (detector input to the regression watch)
CREATE TABLE IF NOT EXISTS signal_recurrences (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    aggregation_key TEXT NOT NULL,
    recurred_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recurrences_key ON signal_recurrences(aggregation_key, recurred_at);

-- Metadata table (schema version and similar internal state)
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', '1');
`
