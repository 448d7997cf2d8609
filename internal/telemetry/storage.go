package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/opsline/triage/internal/attribution"
	"github.com/opsline/triage/internal/storage"
	"github.com/opsline/triage/internal/types"
)

const storageScopeName = "github.com/opsline/triage/storage"

// InstrumentedStorage wraps storage.Storage, counting every operation in
// triage.storage.* metrics. WrapStorage returns the original store unchanged
// when telemetry is disabled, so the hot path costs nothing by default.
type InstrumentedStorage struct {
	inner storage.Storage
	ops   metric.Int64Counter
	dur   metric.Float64Histogram
	errs  metric.Int64Counter
}

var _ storage.Storage = (*InstrumentedStorage)(nil)

// WrapStorage returns s decorated with OTel metrics.
func WrapStorage(s storage.Storage) storage.Storage {
	if !Enabled() {
		return s
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("triage.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("triage.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("triage.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	return &InstrumentedStorage{inner: s, ops: ops, dur: dur, errs: errs}
}

func (s *InstrumentedStorage) record(ctx context.Context, name string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("db.operation", name))
	s.ops.Add(ctx, 1, attrs)
	s.dur.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	if err != nil {
		s.errs.Add(ctx, 1, attrs)
	}
}

func (s *InstrumentedStorage) CreateInboxItem(ctx context.Context, actx *attribution.Context, item *types.InboxItem) error {
	start := time.Now()
	err := s.inner.CreateInboxItem(ctx, actx, item)
	s.record(ctx, "create_inbox_item", start, err)
	return err
}

func (s *InstrumentedStorage) GetInboxItem(ctx context.Context, id string) (*types.InboxItem, error) {
	start := time.Now()
	it, err := s.inner.GetInboxItem(ctx, id)
	s.record(ctx, "get_inbox_item", start, err)
	return it, err
}

func (s *InstrumentedStorage) ListInboxItems(ctx context.Context, filter types.InboxFilter) ([]*types.InboxItem, error) {
	start := time.Now()
	items, err := s.inner.ListInboxItems(ctx, filter)
	s.record(ctx, "list_inbox_items", start, err)
	return items, err
}

func (s *InstrumentedStorage) UpdateInboxItem(ctx context.Context, actx *attribution.Context, item *types.InboxItem) error {
	start := time.Now()
	err := s.inner.UpdateInboxItem(ctx, actx, item)
	s.record(ctx, "update_inbox_item", start, err)
	return err
}

func (s *InstrumentedStorage) CreateIssue(ctx context.Context, actx *attribution.Context, issue *types.Issue) error {
	start := time.Now()
	err := s.inner.CreateIssue(ctx, actx, issue)
	s.record(ctx, "create_issue", start, err)
	return err
}

func (s *InstrumentedStorage) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	start := time.Now()
	is, err := s.inner.GetIssue(ctx, id)
	s.record(ctx, "get_issue", start, err)
	return is, err
}

func (s *InstrumentedStorage) ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	start := time.Now()
	issues, err := s.inner.ListIssues(ctx, filter)
	s.record(ctx, "list_issues", start, err)
	return issues, err
}

func (s *InstrumentedStorage) UpdateIssue(ctx context.Context, actx *attribution.Context, issue *types.Issue) error {
	start := time.Now()
	err := s.inner.UpdateIssue(ctx, actx, issue)
	s.record(ctx, "update_issue", start, err)
	return err
}

func (s *InstrumentedStorage) InsertSuppressionRule(ctx context.Context, actx *attribution.Context, rule *types.SuppressionRule) (int64, error) {
	start := time.Now()
	id, err := s.inner.InsertSuppressionRule(ctx, actx, rule)
	s.record(ctx, "insert_suppression_rule", start, err)
	return id, err
}

func (s *InstrumentedStorage) GetSuppressionRule(ctx context.Context, key string) (*types.SuppressionRule, error) {
	start := time.Now()
	rule, err := s.inner.GetSuppressionRule(ctx, key)
	s.record(ctx, "get_suppression_rule", start, err)
	return rule, err
}

func (s *InstrumentedStorage) IsSuppressed(ctx context.Context, key string, now time.Time) (bool, error) {
	start := time.Now()
	on, err := s.inner.IsSuppressed(ctx, key, now)
	s.record(ctx, "is_suppressed", start, err)
	return on, err
}

func (s *InstrumentedStorage) DeleteSuppressionRule(ctx context.Context, actx *attribution.Context, key string) error {
	start := time.Now()
	err := s.inner.DeleteSuppressionRule(ctx, actx, key)
	s.record(ctx, "delete_suppression_rule", start, err)
	return err
}

func (s *InstrumentedStorage) DeleteExpiredSuppressionRules(ctx context.Context, actx *attribution.Context, now time.Time) (int, error) {
	start := time.Now()
	n, err := s.inner.DeleteExpiredSuppressionRules(ctx, actx, now)
	s.record(ctx, "delete_expired_suppression_rules", start, err)
	return n, err
}

func (s *InstrumentedStorage) ListSuppressionRules(ctx context.Context, includeExpired bool) ([]*types.SuppressionRule, error) {
	start := time.Now()
	rules, err := s.inner.ListSuppressionRules(ctx, includeExpired)
	s.record(ctx, "list_suppression_rules", start, err)
	return rules, err
}

func (s *InstrumentedStorage) RecordRecurrence(ctx context.Context, aggregationKey string, at time.Time) error {
	start := time.Now()
	err := s.inner.RecordRecurrence(ctx, aggregationKey, at)
	s.record(ctx, "record_recurrence", start, err)
	return err
}

func (s *InstrumentedStorage) HasRecurrenceSince(ctx context.Context, aggregationKey string, since time.Time) (bool, error) {
	start := time.Now()
	got, err := s.inner.HasRecurrenceSince(ctx, aggregationKey, since)
	s.record(ctx, "has_recurrence_since", start, err)
	return got, err
}

func (s *InstrumentedStorage) AuditHistory(ctx context.Context, table, rowID string, limit int) ([]*types.AuditEntry, error) {
	start := time.Now()
	entries, err := s.inner.AuditHistory(ctx, table, rowID, limit)
	s.record(ctx, "audit_history", start, err)
	return entries, err
}

func (s *InstrumentedStorage) AuditByRequest(ctx context.Context, requestID string) ([]*types.AuditEntry, error) {
	start := time.Now()
	entries, err := s.inner.AuditByRequest(ctx, requestID)
	s.record(ctx, "audit_by_request", start, err)
	return entries, err
}

func (s *InstrumentedStorage) MysteryWrites(ctx context.Context, window time.Duration, minRows int) ([]storage.MysteryWrite, error) {
	start := time.Now()
	mws, err := s.inner.MysteryWrites(ctx, window, minRows)
	s.record(ctx, "mystery_writes", start, err)
	return mws, err
}

func (s *InstrumentedStorage) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	start := time.Now()
	err := s.inner.RunInTransaction(ctx, fn)
	s.record(ctx, "run_in_transaction", start, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
