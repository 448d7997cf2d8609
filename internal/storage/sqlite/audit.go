package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opsline/triage/internal/attribution"
	"github.com/opsline/triage/internal/storage"
	"github.com/opsline/triage/internal/timeutil"
	"github.com/opsline/triage/internal/types"
)

// appendAudit writes one audit row for a protected-table write. It runs on
// the same querier (and therefore the same transaction) as the write it
// records, so the row and its audit entry commit or roll back together.
func appendAudit(ctx context.Context, q querier, actx *attribution.Context, table string, op types.AuditOp, rowID, beforeJSON, afterJSON string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO audit_log (at, actor, request_id, source, build_tag, table_name, op, row_id, before_json, after_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, timeStr(timeutil.Now()), actx.EffectiveActor(), actx.RequestID, actx.Source, actx.BuildTag,
		table, op, rowID, beforeJSON, afterJSON)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// appendAuditEntry writes a caller-supplied audit row (used by resolve to
// record the transient "resolved" step). The entry's attribution fields are
// always taken from the context, never trusted from the caller.
func appendAuditEntry(ctx context.Context, q querier, actx *attribution.Context, entry *types.AuditEntry) error {
	if err := requireAttribution(actx); err != nil {
		return err
	}
	if !entry.Op.IsValid() {
		return &storage.InvariantError{Table: "audit_log", RowID: entry.RowID, Rule: ruleValidEnum, Detail: "unknown audit op"}
	}
	at := entry.At
	if at.IsZero() {
		at = timeutil.Now()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO audit_log (at, actor, request_id, source, build_tag, table_name, op, row_id, before_json, after_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, timeStr(at), actx.EffectiveActor(), actx.RequestID, actx.Source, actx.BuildTag,
		entry.TableName, entry.Op, entry.RowID, entry.BeforeJSON, entry.AfterJSON)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func scanAuditRows(rows *sql.Rows) ([]*types.AuditEntry, error) {
	var entries []*types.AuditEntry
	for rows.Next() {
		var e types.AuditEntry
		var at string
		if err := rows.Scan(&e.ID, &at, &e.Actor, &e.RequestID, &e.Source, &e.BuildTag,
			&e.TableName, &e.Op, &e.RowID, &e.BeforeJSON, &e.AfterJSON); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		t, err := parseTime(at)
		if err != nil {
			return nil, err
		}
		e.At = t
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

const auditColumns = `id, at, actor, request_id, source, build_tag, table_name, op, row_id, before_json, after_json`

// AuditHistory answers "who changed this row": all audit entries for one
// row of one table, newest first.
func (s *Store) AuditHistory(ctx context.Context, table, rowID string, limit int) ([]*types.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_log WHERE table_name = ? AND row_id = ? ORDER BY id DESC`
	args := []any{table, rowID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("query audit history", err)
	}
	defer func() { _ = rows.Close() }()
	return scanAuditRows(rows)
}

// AuditByRequest returns every audit entry written under one request id.
func (s *Store) AuditByRequest(ctx context.Context, requestID string) ([]*types.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_log WHERE request_id = ? ORDER BY id`, requestID)
	if err != nil {
		return nil, wrapDBError("query audit by request", err)
	}
	defer func() { _ = rows.Close() }()
	return scanAuditRows(rows)
}

// MysteryWrites finds request ids that touched at least minRows rows within
// the trailing window. Operators use it to spot runaway bulk writes.
func (s *Store) MysteryWrites(ctx context.Context, window time.Duration, minRows int) ([]storage.MysteryWrite, error) {
	since := timeutil.Now().Add(-window)
	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id, actor, source, COUNT(*) AS row_count, MIN(at), MAX(at)
		FROM audit_log
		WHERE at >= ?
		GROUP BY request_id, actor, source
		HAVING COUNT(*) >= ?
		ORDER BY row_count DESC
	`, timeStr(since), minRows)
	if err != nil {
		return nil, wrapDBError("query mystery writes", err)
	}
	defer func() { _ = rows.Close() }()

	var out []storage.MysteryWrite
	for rows.Next() {
		var mw storage.MysteryWrite
		var first, last string
		if err := rows.Scan(&mw.RequestID, &mw.Actor, &mw.Source, &mw.RowCount, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan mystery write: %w", err)
		}
		if mw.FirstAt, err = parseTime(first); err != nil {
			return nil, err
		}
		if mw.LastAt, err = parseTime(last); err != nil {
			return nil, err
		}
		out = append(out, mw)
	}
	return out, rows.Err()
}
