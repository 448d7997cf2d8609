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

const issueColumns = `id, type, state, severity, title,
	client_id, brand_id, engagement_id, aggregation_key,
	detected_at, surfaced_at,
	acknowledged_at, acknowledged_by,
	assigned_at, assigned_to,
	snoozed_at, snoozed_by, snooze_until,
	suppressed, suppressed_at, suppressed_by,
	escalated, escalated_at, escalated_by,
	resolved_at, resolved_by, regression_watch_until, regressed_at, closed_at,
	evidence, created_at, updated_at`

func issueSnapshot(is *types.Issue) string {
	cp := *is
	cp.TrustDegraded = false
	raw, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Sprintf(`{"id":%q}`, is.ID)
	}
	return string(raw)
}

func insertIssue(ctx context.Context, q querier, actx *attribution.Context, is *types.Issue) error {
	if err := requireAttribution(actx); err != nil {
		return err
	}

	now := timeutil.Now()
	if is.DetectedAt.IsZero() {
		is.DetectedAt = now
	}
	is.CreatedAt = now
	is.UpdatedAt = now

	if ierr := checkIssueInvariants(is); ierr != nil {
		return ierr
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO issues (`+issueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		is.ID, is.Type, is.State, is.Severity, is.Title,
		is.ClientID, is.BrandID, is.EngagementID, is.AggregationKey,
		timeStr(is.DetectedAt), nullTimeStr(is.SurfacedAt),
		nullTimeStr(is.AcknowledgedAt), is.AcknowledgedBy,
		nullTimeStr(is.AssignedAt), is.AssignedTo,
		nullTimeStr(is.SnoozedAt), is.SnoozedBy, nullTimeStr(is.SnoozeUntil),
		is.Suppressed, nullTimeStr(is.SuppressedAt), is.SuppressedBy,
		is.Escalated, nullTimeStr(is.EscalatedAt), is.EscalatedBy,
		nullTimeStr(is.ResolvedAt), is.ResolvedBy, nullTimeStr(is.RegressionWatchUntil),
		nullTimeStr(is.RegressedAt), nullTimeStr(is.ClosedAt),
		is.Evidence, timeStr(is.CreatedAt), timeStr(is.UpdatedAt),
	)
	if err != nil {
		return wrapDBError("insert issue", err)
	}

	return appendAudit(ctx, q, actx, "issues", types.OpInsert, is.ID, "", issueSnapshot(is))
}

func updateIssue(ctx context.Context, q querier, actx *attribution.Context, is *types.Issue) error {
	if err := requireAttribution(actx); err != nil {
		return err
	}

	before, err := getIssue(ctx, q, is.ID)
	if err != nil {
		return err
	}

	is.CreatedAt = before.CreatedAt
	is.UpdatedAt = timeutil.Now()

	if ierr := checkIssueInvariants(is); ierr != nil {
		return ierr
	}

	_, err = q.ExecContext(ctx, `
		UPDATE issues SET
			type = ?, state = ?, severity = ?, title = ?,
			client_id = ?, brand_id = ?, engagement_id = ?, aggregation_key = ?,
			detected_at = ?, surfaced_at = ?,
			acknowledged_at = ?, acknowledged_by = ?,
			assigned_at = ?, assigned_to = ?,
			snoozed_at = ?, snoozed_by = ?, snooze_until = ?,
			suppressed = ?, suppressed_at = ?, suppressed_by = ?,
			escalated = ?, escalated_at = ?, escalated_by = ?,
			resolved_at = ?, resolved_by = ?, regression_watch_until = ?, regressed_at = ?, closed_at = ?,
			evidence = ?, updated_at = ?
		WHERE id = ?
	`,
		is.Type, is.State, is.Severity, is.Title,
		is.ClientID, is.BrandID, is.EngagementID, is.AggregationKey,
		timeStr(is.DetectedAt), nullTimeStr(is.SurfacedAt),
		nullTimeStr(is.AcknowledgedAt), is.AcknowledgedBy,
		nullTimeStr(is.AssignedAt), is.AssignedTo,
		nullTimeStr(is.SnoozedAt), is.SnoozedBy, nullTimeStr(is.SnoozeUntil),
		is.Suppressed, nullTimeStr(is.SuppressedAt), is.SuppressedBy,
		is.Escalated, nullTimeStr(is.EscalatedAt), is.EscalatedBy,
		nullTimeStr(is.ResolvedAt), is.ResolvedBy, nullTimeStr(is.RegressionWatchUntil),
		nullTimeStr(is.RegressedAt), nullTimeStr(is.ClosedAt),
		is.Evidence, timeStr(is.UpdatedAt),
		is.ID,
	)
	if err != nil {
		return wrapDBError("update issue", err)
	}

	return appendAudit(ctx, q, actx, "issues", types.OpUpdate, is.ID, issueSnapshot(before), issueSnapshot(is))
}

func getIssue(ctx context.Context, q querier, id string) (*types.Issue, error) {
	row := q.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	is, err := scanIssue(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("issue %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, wrapDBError("get issue", err)
	}
	return is, nil
}

func listIssues(ctx context.Context, q querier, filter types.IssueFilter) ([]*types.Issue, error) {
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
	if filter.AssignedTo != "" {
		conds = append(conds, "assigned_to = ?")
		args = append(args, filter.AssignedTo)
	}
	if filter.Suppressed != nil {
		conds = append(conds, "suppressed = ?")
		args = append(args, *filter.Suppressed)
	}

	query := `SELECT ` + issueColumns + ` FROM issues`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY detected_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list issues", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []*types.Issue
	for rows.Next() {
		is, err := scanIssue(rows.Scan)
		if err != nil {
			return nil, wrapDBError("scan issue", err)
		}
		issues = append(issues, is)
	}
	return issues, rows.Err()
}

func scanIssue(scan func(dest ...any) error) (*types.Issue, error) {
	var is types.Issue
	var detectedAt, createdAt, updatedAt string
	var surfacedAt, acknowledgedAt, assignedAt, snoozedAt, snoozeUntil sql.NullString
	var suppressedAt, escalatedAt, resolvedAt, watchUntil, regressedAt, closedAt sql.NullString

	err := scan(
		&is.ID, &is.Type, &is.State, &is.Severity, &is.Title,
		&is.ClientID, &is.BrandID, &is.EngagementID, &is.AggregationKey,
		&detectedAt, &surfacedAt,
		&acknowledgedAt, &is.AcknowledgedBy,
		&assignedAt, &is.AssignedTo,
		&snoozedAt, &is.SnoozedBy, &snoozeUntil,
		&is.Suppressed, &suppressedAt, &is.SuppressedBy,
		&is.Escalated, &escalatedAt, &is.EscalatedBy,
		&resolvedAt, &is.ResolvedBy, &watchUntil, &regressedAt, &closedAt,
		&is.Evidence, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if is.DetectedAt, err = parseTime(detectedAt); err != nil {
		return nil, err
	}
	if is.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if is.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if is.SurfacedAt, err = parseNullTime(surfacedAt); err != nil {
		return nil, err
	}
	if is.AcknowledgedAt, err = parseNullTime(acknowledgedAt); err != nil {
		return nil, err
	}
	if is.AssignedAt, err = parseNullTime(assignedAt); err != nil {
		return nil, err
	}
	if is.SnoozedAt, err = parseNullTime(snoozedAt); err != nil {
		return nil, err
	}
	if is.SnoozeUntil, err = parseNullTime(snoozeUntil); err != nil {
		return nil, err
	}
	if is.SuppressedAt, err = parseNullTime(suppressedAt); err != nil {
		return nil, err
	}
	if is.EscalatedAt, err = parseNullTime(escalatedAt); err != nil {
		return nil, err
	}
	if is.ResolvedAt, err = parseNullTime(resolvedAt); err != nil {
		return nil, err
	}
	if is.RegressionWatchUntil, err = parseNullTime(watchUntil); err != nil {
		return nil, err
	}
	if is.RegressedAt, err = parseNullTime(regressedAt); err != nil {
		return nil, err
	}
	if is.ClosedAt, err = parseNullTime(closedAt); err != nil {
		return nil, err
	}

	if _, pi := evidence.Parse(is.Evidence); pi != nil {
		is.TrustDegraded = true
		debug.Logf("issue %s has malformed evidence: %v", is.ID, pi)
	}

	return &is, nil
}
