// Package storage provides shared types for lifecycle record storage.
//
// The concrete implementation lives in the sqlite sub-package. This package
// holds the interface, the error taxonomy, and value types referenced by
// both the implementation and its consumers (lifecycle, sweep, cmd/tri).
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opsline/triage/internal/attribution"
	"github.com/opsline/triage/internal/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrNoAttribution is returned when a protected-table write is attempted
// without a valid attribution context and no maintenance override. Fatal by
// design: unattributed history is worse than a failed write.
var ErrNoAttribution = errors.New("write attempted without attribution context")

// ErrSuppressed is returned when creation is blocked by an active
// suppression rule.
var ErrSuppressed = errors.New("suppressed by active rule")

// ErrAuditImmutable is returned on any attempt to update or delete audit
// log rows.
var ErrAuditImmutable = errors.New("audit log is append-only")

// InvariantError reports a storage-level guard rejection. It is a distinct
// error class so callers can tell a lifecycle invariant violation from a
// generic database failure.
type InvariantError struct {
	Table  string
	RowID  string
	Rule   string // short machine-readable rule name
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant %s violated on %s/%s: %s", e.Rule, e.Table, e.RowID, e.Detail)
}

// IsInvariantError reports whether err wraps an invariant rejection.
func IsInvariantError(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

// Storage is the interface satisfied by *sqlite.Store. Consumers depend on
// this interface so alternative backends and mocks can be substituted.
//
// Every write method takes an attribution context; writes without one fail
// with ErrNoAttribution before touching the table.
type Storage interface {
	// Inbox items
	CreateInboxItem(ctx context.Context, actx *attribution.Context, item *types.InboxItem) error
	GetInboxItem(ctx context.Context, id string) (*types.InboxItem, error)
	ListInboxItems(ctx context.Context, filter types.InboxFilter) ([]*types.InboxItem, error)
	UpdateInboxItem(ctx context.Context, actx *attribution.Context, item *types.InboxItem) error

	// Issues
	CreateIssue(ctx context.Context, actx *attribution.Context, issue *types.Issue) error
	GetIssue(ctx context.Context, id string) (*types.Issue, error)
	ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error)
	UpdateIssue(ctx context.Context, actx *attribution.Context, issue *types.Issue) error

	// Suppression rules
	InsertSuppressionRule(ctx context.Context, actx *attribution.Context, rule *types.SuppressionRule) (int64, error)
	GetSuppressionRule(ctx context.Context, key string) (*types.SuppressionRule, error)
	IsSuppressed(ctx context.Context, key string, now time.Time) (bool, error)
	DeleteSuppressionRule(ctx context.Context, actx *attribution.Context, key string) error
	DeleteExpiredSuppressionRules(ctx context.Context, actx *attribution.Context, now time.Time) (int, error)
	ListSuppressionRules(ctx context.Context, includeExpired bool) ([]*types.SuppressionRule, error)

	// Signal recurrence markers (detector-side input to regression watch)
	RecordRecurrence(ctx context.Context, aggregationKey string, at time.Time) error
	HasRecurrenceSince(ctx context.Context, aggregationKey string, since time.Time) (bool, error)

	// Audit queries
	AuditHistory(ctx context.Context, table, rowID string, limit int) ([]*types.AuditEntry, error)
	AuditByRequest(ctx context.Context, requestID string) ([]*types.AuditEntry, error)
	MysteryWrites(ctx context.Context, window time.Duration, minRows int) ([]MysteryWrite, error)

	// Transactions
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Lifecycle
	Close() error
}

// Transaction exposes the subset of storage methods that execute within a
// single database transaction. All operations share one connection; an
// error from the callback rolls everything back.
type Transaction interface {
	CreateInboxItem(ctx context.Context, actx *attribution.Context, item *types.InboxItem) error
	GetInboxItem(ctx context.Context, id string) (*types.InboxItem, error)
	ListInboxItems(ctx context.Context, filter types.InboxFilter) ([]*types.InboxItem, error)
	UpdateInboxItem(ctx context.Context, actx *attribution.Context, item *types.InboxItem) error

	CreateIssue(ctx context.Context, actx *attribution.Context, issue *types.Issue) error
	GetIssue(ctx context.Context, id string) (*types.Issue, error)
	UpdateIssue(ctx context.Context, actx *attribution.Context, issue *types.Issue) error

	InsertSuppressionRule(ctx context.Context, actx *attribution.Context, rule *types.SuppressionRule) (int64, error)
	IsSuppressed(ctx context.Context, key string, now time.Time) (bool, error)

	// AppendAudit records an extra audit row beyond the automatic per-write
	// rows. The resolve action uses it to log the transient "resolved" step.
	AppendAudit(ctx context.Context, actx *attribution.Context, entry *types.AuditEntry) error
}

// MysteryWrite summarizes a request id that touched an anomalously large
// number of rows in a short window.
type MysteryWrite struct {
	RequestID string    `json:"request_id"`
	Actor     string    `json:"actor"`
	Source    string    `json:"source"`
	RowCount  int       `json:"row_count"`
	FirstAt   time.Time `json:"first_at"`
	LastAt    time.Time `json:"last_at"`
}
