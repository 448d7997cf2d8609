package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/opsline/triage/internal/attribution"
	"github.com/opsline/triage/internal/debug"
	"github.com/opsline/triage/internal/evidence"
	"github.com/opsline/triage/internal/storage"
	"github.com/opsline/triage/internal/timeutil"
	"github.com/opsline/triage/internal/types"
)

const inboxColumns = `id, type, state, severity, proposed_at, resurfaced_at, read_at, snooze_until,
	dismissed_at, dismissed_by, dismissed_reason, suppression_key,
	resolved_at, resolved_issue_id, resolution_reason,
	underlying_issue_id, underlying_signal_id,
	client_id, brand_id, engagement_id, signal_source, signal_rule,
	evidence, created_at, updated_at`

// inboxSnapshot renders the audit before/after JSON for an item. Read-side
// flags (TrustDegraded) are cleared so snapshots reflect only persisted state.
func inboxSnapshot(it *types.InboxItem) string {
	cp := *it
	cp.TrustDegraded = false
	raw, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Sprintf(`{"id":%q}`, it.ID)
	}
	return string(raw)
}

func insertInboxItem(ctx context.Context, q querier, actx *attribution.Context, it *types.InboxItem) error {
	if err := requireAttribution(actx); err != nil {
		return err
	}

	now := timeutil.Now()
	if it.ProposedAt.IsZero() {
		it.ProposedAt = now
	}
	it.CreatedAt = now
	it.UpdatedAt = now

	if ierr := checkInboxInvariants(it); ierr != nil {
		return ierr
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO inbox_items (`+inboxColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		it.ID, it.Type, it.State, it.Severity,
		timeStr(it.ProposedAt), nullTimeStr(it.ResurfacedAt), nullTimeStr(it.ReadAt), nullTimeStr(it.SnoozeUntil),
		nullTimeStr(it.DismissedAt), it.DismissedBy, it.DismissedReason, it.SuppressionKey,
		nullTimeStr(it.ResolvedAt), it.ResolvedIssueID, it.ResolutionReason,
		it.UnderlyingIssueID, it.UnderlyingSignalID,
		it.ClientID, it.BrandID, it.EngagementID, it.SignalSource, it.SignalRule,
		it.Evidence, timeStr(it.CreatedAt), timeStr(it.UpdatedAt),
	)
	if err != nil {
		return wrapDBError("insert inbox item", err)
	}

	return appendAudit(ctx, q, actx, "inbox_items", types.OpInsert, it.ID, "", inboxSnapshot(it))
}

func updateInboxItem(ctx context.Context, q querier, actx *attribution.Context, it *types.InboxItem) error {
	if err := requireAttribution(actx); err != nil {
		return err
	}

	before, err := getInboxItem(ctx, q, it.ID)
	if err != nil {
		return err
	}

	it.CreatedAt = before.CreatedAt
	it.UpdatedAt = timeutil.Now()

	if ierr := checkInboxInvariants(it); ierr != nil {
		return ierr
	}

	_, err = q.ExecContext(ctx, `
		UPDATE inbox_items SET
			type = ?, state = ?, severity = ?,
			proposed_at = ?, resurfaced_at = ?, read_at = ?, snooze_until = ?,
			dismissed_at = ?, dismissed_by = ?, dismissed_reason = ?, suppression_key = ?,
			resolved_at = ?, resolved_issue_id = ?, resolution_reason = ?,
			underlying_issue_id = ?, underlying_signal_id = ?,
			client_id = ?, brand_id = ?, engagement_id = ?, signal_source = ?, signal_rule = ?,
			evidence = ?, updated_at = ?
		WHERE id = ?
	`,
		it.Type, it.State, it.Severity,
		timeStr(it.ProposedAt), nullTimeStr(it.ResurfacedAt), nullTimeStr(it.ReadAt), nullTimeStr(it.SnoozeUntil),
		nullTimeStr(it.DismissedAt), it.DismissedBy, it.DismissedReason, it.SuppressionKey,
		nullTimeStr(it.ResolvedAt), it.ResolvedIssueID, it.ResolutionReason,
		it.UnderlyingIssueID, it.UnderlyingSignalID,
		it.ClientID, it.BrandID, it.EngagementID, it.SignalSource, it.SignalRule,
		it.Evidence, timeStr(it.UpdatedAt),
		it.ID,
	)
	if err != nil {
		return wrapDBError("update inbox item", err)
	}

	return appendAudit(ctx, q, actx, "inbox_items", types.OpUpdate, it.ID, inboxSnapshot(before), inboxSnapshot(it))
}

func getInboxItem(ctx context.Context, q querier, id string) (*types.InboxItem, error) {
	row := q.QueryRowContext(ctx, `SELECT `+inboxColumns+` FROM inbox_items WHERE id = ?`, id)
	it, err := scanInboxItem(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("inbox item %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, wrapDBError("get inbox item", err)
	}
	return it, nil
}

func listInboxItems(ctx context.Context, q querier, filter types.InboxFilter) ([]*types.InboxItem, error) {
	var conds []string
	var args []any

	if filter.State != nil {
		conds = append(conds, "state = ?")
		args = append(args, *filter.State)
	}
	if filter.Type != nil {
		conds = append(conds, "type = ?")
		args = append(args, *filter.Type)
	}
	if filter.Severity != nil {
		conds = append(conds, "severity = ?")
		args = append(args, *filter.Severity)
	}
	if filter.ClientID != "" {
		conds = append(conds, "client_id = ?")
		args = append(args, filter.ClientID)
	}
	if filter.EngagementID != "" {
		conds = append(conds, "engagement_id = ?")
		args = append(args, filter.EngagementID)
	}
	if filter.IssueID != "" {
		conds = append(conds, "underlying_issue_id = ?")
		args = append(args, filter.IssueID)
	}
	if filter.UnreadOnly {
		conds = append(conds, "read_at IS NULL OR (resurfaced_at IS NOT NULL AND read_at < resurfaced_at)")
	}

	query := `SELECT ` + inboxColumns + ` FROM inbox_items`
	if len(conds) > 0 {
		query += ` WHERE (` + strings.Join(conds, `) AND (`) + `)`
	}
	query += ` ORDER BY proposed_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list inbox items", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*types.InboxItem
	for rows.Next() {
		it, err := scanInboxItem(rows.Scan)
		if err != nil {
			return nil, wrapDBError("scan inbox item", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// scanInboxItem decodes one row. Malformed persisted evidence does not fail
// the read: the item is returned with TrustDegraded set and a bounded
// snippet logged, so the corruption is visible instead of silently papered
// over with an empty envelope.
func scanInboxItem(scan func(dest ...any) error) (*types.InboxItem, error) {
	var it types.InboxItem
	var proposedAt, createdAt, updatedAt string
	var resurfacedAt, readAt, snoozeUntil, dismissedAt, resolvedAt sql.NullString

	err := scan(
		&it.ID, &it.Type, &it.State, &it.Severity,
		&proposedAt, &resurfacedAt, &readAt, &snoozeUntil,
		&dismissedAt, &it.DismissedBy, &it.DismissedReason, &it.SuppressionKey,
		&resolvedAt, &it.ResolvedIssueID, &it.ResolutionReason,
		&it.UnderlyingIssueID, &it.UnderlyingSignalID,
		&it.ClientID, &it.BrandID, &it.EngagementID, &it.SignalSource, &it.SignalRule,
		&it.Evidence, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if it.ProposedAt, err = parseTime(proposedAt); err != nil {
		return nil, err
	}
	if it.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if it.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if it.ResurfacedAt, err = parseNullTime(resurfacedAt); err != nil {
		return nil, err
	}
	if it.ReadAt, err = parseNullTime(readAt); err != nil {
		return nil, err
	}
	if it.SnoozeUntil, err = parseNullTime(snoozeUntil); err != nil {
		return nil, err
	}
	if it.DismissedAt, err = parseNullTime(dismissedAt); err != nil {
		return nil, err
	}
	if it.ResolvedAt, err = parseNullTime(resolvedAt); err != nil {
		return nil, err
	}

	if _, pi := evidence.Parse(it.Evidence); pi != nil {
		it.TrustDegraded = true
		debug.Logf("inbox item %s has malformed evidence: %v", it.ID, pi)
	}

	return &it, nil
}
