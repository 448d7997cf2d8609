package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/opsline/triage/internal/attribution"
	"github.com/opsline/triage/internal/debug"
	"github.com/opsline/triage/internal/storage"
	"github.com/opsline/triage/internal/types"
)

// txStore implements storage.Transaction. All operations run on one
// dedicated connection holding a BEGIN IMMEDIATE write lock.
type txStore struct {
	conn querier
}

var _ storage.Transaction = (*txStore)(nil)

func (t *txStore) CreateInboxItem(ctx context.Context, actx *attribution.Context, item *types.InboxItem) error {
	return insertInboxItem(ctx, t.conn, actx, item)
}

func (t *txStore) GetInboxItem(ctx context.Context, id string) (*types.InboxItem, error) {
	return getInboxItem(ctx, t.conn, id)
}

func (t *txStore) ListInboxItems(ctx context.Context, filter types.InboxFilter) ([]*types.InboxItem, error) {
	return listInboxItems(ctx, t.conn, filter)
}

func (t *txStore) UpdateInboxItem(ctx context.Context, actx *attribution.Context, item *types.InboxItem) error {
	return updateInboxItem(ctx, t.conn, actx, item)
}

func (t *txStore) CreateIssue(ctx context.Context, actx *attribution.Context, issue *types.Issue) error {
	return insertIssue(ctx, t.conn, actx, issue)
}

func (t *txStore) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	return getIssue(ctx, t.conn, id)
}

func (t *txStore) UpdateIssue(ctx context.Context, actx *attribution.Context, issue *types.Issue) error {
	return updateIssue(ctx, t.conn, actx, issue)
}

func (t *txStore) InsertSuppressionRule(ctx context.Context, actx *attribution.Context, rule *types.SuppressionRule) (int64, error) {
	return insertSuppressionRule(ctx, t.conn, actx, rule)
}

func (t *txStore) IsSuppressed(ctx context.Context, key string, now time.Time) (bool, error) {
	return isSuppressed(ctx, t.conn, key, now)
}

func (t *txStore) AppendAudit(ctx context.Context, actx *attribution.Context, entry *types.AuditEntry) error {
	return appendAuditEntry(ctx, t.conn, actx, entry)
}

// isBusyError detects SQLite lock contention worth retrying. modernc.org/sqlite
// surfaces SQLITE_BUSY / SQLITE_LOCKED in the error text.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}

// RunInTransaction executes fn inside a single BEGIN IMMEDIATE transaction.
//
// BEGIN IMMEDIATE takes the write lock up front, so the transaction cannot
// fail with SQLITE_BUSY halfway through after reads have been issued. Lock
// acquisition itself retries with exponential backoff. The callback's writes
// and their audit rows commit atomically or not at all.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	op := func() error {
		conn, err := s.db.Conn(ctx)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to acquire connection: %w", err))
		}
		defer func() { _ = conn.Close() }()

		if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
			if isBusyError(err) {
				debug.Logf("BEGIN IMMEDIATE busy, retrying: %v", err)
				return err
			}
			return backoff.Permanent(fmt.Errorf("failed to begin transaction: %w", err))
		}

		committed := false
		defer func() {
			if !committed {
				if _, rbErr := conn.ExecContext(ctx, "ROLLBACK"); rbErr != nil {
					debug.Logf("rollback failed: %v", rbErr)
				}
			}
		}()

		if err := fn(&txStore{conn: conn}); err != nil {
			// Domain errors (invariant rejections, not-found, suppression)
			// must propagate as-is, never be retried.
			return backoff.Permanent(err)
		}

		if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
			if isBusyError(err) {
				return err
			}
			return backoff.Permanent(fmt.Errorf("failed to commit transaction: %w", err))
		}
		committed = true
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = 10 * time.Second

	err := backoff.Retry(op, backoff.WithContext(bo, ctx))
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
