package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opsline/triage/internal/attribution"
	"github.com/opsline/triage/internal/storage"
	"github.com/opsline/triage/internal/timeutil"
	"github.com/opsline/triage/internal/types"
)

const suppressionColumns = `id, suppression_key, item_type, created_by, created_at, expires_at, reason`

func suppressionSnapshot(r *types.SuppressionRule) string {
	return fmt.Sprintf(`{"id":%d,"suppression_key":%q,"item_type":%q,"expires_at":%q}`,
		r.ID, r.SuppressionKey, r.ItemType, timeStr(r.ExpiresAt))
}

// insertSuppressionRule is idempotent on the key: re-dismissing an item whose
// rule already exists returns the existing rule id instead of failing on the
// UNIQUE constraint. The existing rule's expiry is extended if the new one
// would outlive it.
func insertSuppressionRule(ctx context.Context, q querier, actx *attribution.Context, rule *types.SuppressionRule) (int64, error) {
	if err := requireAttribution(actx); err != nil {
		return 0, err
	}
	if !rule.ItemType.IsValid() {
		return 0, &storage.InvariantError{Table: "suppression_rules", RowID: rule.SuppressionKey, Rule: ruleValidEnum, Detail: "unknown item type"}
	}
	if rule.SuppressionKey == "" {
		return 0, &storage.InvariantError{Table: "suppression_rules", RowID: "", Rule: ruleValidEnum, Detail: "empty suppression key"}
	}

	existing, err := getSuppressionRule(ctx, q, rule.SuppressionKey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}
	if existing != nil {
		if rule.ExpiresAt.After(existing.ExpiresAt) {
			before := suppressionSnapshot(existing)
			_, err := q.ExecContext(ctx,
				`UPDATE suppression_rules SET expires_at = ? WHERE id = ?`,
				timeStr(rule.ExpiresAt), existing.ID)
			if err != nil {
				return 0, wrapDBError("extend suppression rule", err)
			}
			existing.ExpiresAt = rule.ExpiresAt
			rowID := fmt.Sprintf("%d", existing.ID)
			if err := appendAudit(ctx, q, actx, "suppression_rules", types.OpUpdate, rowID, before, suppressionSnapshot(existing)); err != nil {
				return 0, err
			}
		}
		rule.ID = existing.ID
		return existing.ID, nil
	}

	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = timeutil.Now()
	}
	rule.CreatedBy = actx.EffectiveActor()

	res, err := q.ExecContext(ctx, `
		INSERT INTO suppression_rules (suppression_key, item_type, created_by, created_at, expires_at, reason)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rule.SuppressionKey, rule.ItemType, rule.CreatedBy, timeStr(rule.CreatedAt), timeStr(rule.ExpiresAt), rule.Reason)
	if err != nil {
		return 0, wrapDBError("insert suppression rule", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrapDBError("insert suppression rule", err)
	}
	rule.ID = id

	rowID := fmt.Sprintf("%d", id)
	if err := appendAudit(ctx, q, actx, "suppression_rules", types.OpInsert, rowID, "", suppressionSnapshot(rule)); err != nil {
		return 0, err
	}
	return id, nil
}

func getSuppressionRule(ctx context.Context, q querier, key string) (*types.SuppressionRule, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+suppressionColumns+` FROM suppression_rules WHERE suppression_key = ?`, key)
	r, err := scanSuppressionRule(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("suppression rule %s: %w", key, storage.ErrNotFound)
	}
	if err != nil {
		return nil, wrapDBError("get suppression rule", err)
	}
	return r, nil
}

// isSuppressed reports whether an unexpired rule exists for the key.
// Expired rules never block: the check is entirely against expires_at, so
// suppression lapses on schedule even if GC has not run.
func isSuppressed(ctx context.Context, q querier, key string, now time.Time) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM suppression_rules WHERE suppression_key = ? AND expires_at > ?`,
		key, timeStr(now)).Scan(&n)
	if err != nil {
		return false, wrapDBError("check suppression", err)
	}
	return n > 0, nil
}

func scanSuppressionRule(scan func(dest ...any) error) (*types.SuppressionRule, error) {
	var r types.SuppressionRule
	var createdAt, expiresAt string
	if err := scan(&r.ID, &r.SuppressionKey, &r.ItemType, &r.CreatedBy, &createdAt, &expiresAt, &r.Reason); err != nil {
		return nil, err
	}
	var err error
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if r.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteSuppressionRule removes a rule by key (un-dismissing a pattern) and
// clears the suppressed flag on any issue whose dismissal minted the rule,
// all in one transaction. Every write is audit-logged.
func (s *Store) DeleteSuppressionRule(ctx context.Context, actx *attribution.Context, key string) error {
	return s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		t := tx.(*txStore)
		if err := requireAttribution(actx); err != nil {
			return err
		}
		existing, err := getSuppressionRule(ctx, t.conn, key)
		if err != nil {
			return err
		}
		if _, err := t.conn.ExecContext(ctx, `DELETE FROM suppression_rules WHERE id = ?`, existing.ID); err != nil {
			return wrapDBError("delete suppression rule", err)
		}
		rowID := fmt.Sprintf("%d", existing.ID)
		if err := appendAudit(ctx, t.conn, actx, "suppression_rules", types.OpDelete, rowID, suppressionSnapshot(existing), ""); err != nil {
			return err
		}
		return unsuppressIssuesForKey(ctx, t, actx, key)
	})
}

// unsuppressIssuesForKey reverses the issue-side effect of a dismissal: the
// issues behind the removed rule are found through the dismissed items
// carrying the key, and their suppressed flag is cleared (with the usual
// per-write audit row).
func unsuppressIssuesForKey(ctx context.Context, t *txStore, actx *attribution.Context, key string) error {
	rows, err := t.conn.QueryContext(ctx, `
		SELECT DISTINCT underlying_issue_id FROM inbox_items
		WHERE suppression_key = ? AND underlying_issue_id != ''`, key)
	if err != nil {
		return wrapDBError("find suppressed issues", err)
	}
	var issueIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return wrapDBError("scan issue id", err)
		}
		issueIDs = append(issueIDs, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, id := range issueIDs {
		is, err := t.GetIssue(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if !is.Suppressed {
			continue
		}
		is.Suppressed = false
		is.SuppressedAt = nil
		is.SuppressedBy = ""
		if err := t.UpdateIssue(ctx, actx, is); err != nil {
			return err
		}
	}
	return nil
}

// DeleteExpiredSuppressionRules garbage-collects rules whose expiry has
// passed, returning how many were removed. Each deletion gets its own audit
// row so the pruning is reconstructible.
func (s *Store) DeleteExpiredSuppressionRules(ctx context.Context, actx *attribution.Context, now time.Time) (int, error) {
	var removed int
	err := s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		t := tx.(*txStore)
		if err := requireAttribution(actx); err != nil {
			return err
		}
		rows, err := t.conn.QueryContext(ctx,
			`SELECT `+suppressionColumns+` FROM suppression_rules WHERE expires_at <= ?`, timeStr(now))
		if err != nil {
			return wrapDBError("list expired suppression rules", err)
		}
		var expired []*types.SuppressionRule
		for rows.Next() {
			r, err := scanSuppressionRule(rows.Scan)
			if err != nil {
				_ = rows.Close()
				return wrapDBError("scan suppression rule", err)
			}
			expired = append(expired, r)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return err
		}
		_ = rows.Close()

		for _, r := range expired {
			if _, err := t.conn.ExecContext(ctx, `DELETE FROM suppression_rules WHERE id = ?`, r.ID); err != nil {
				return wrapDBError("delete expired suppression rule", err)
			}
			rowID := fmt.Sprintf("%d", r.ID)
			if err := appendAudit(ctx, t.conn, actx, "suppression_rules", types.OpDelete, rowID, suppressionSnapshot(r), ""); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// ListSuppressionRules returns rules ordered by expiry, soonest first.
func (s *Store) ListSuppressionRules(ctx context.Context, includeExpired bool) ([]*types.SuppressionRule, error) {
	query := `SELECT ` + suppressionColumns + ` FROM suppression_rules`
	var args []any
	if !includeExpired {
		query += ` WHERE expires_at > ?`
		args = append(args, timeStr(timeutil.Now()))
	}
	query += ` ORDER BY expires_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list suppression rules", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []*types.SuppressionRule
	for rows.Next() {
		r, err := scanSuppressionRule(rows.Scan)
		if err != nil {
			return nil, wrapDBError("scan suppression rule", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}
