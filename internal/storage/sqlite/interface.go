package sqlite

import (
	"context"
	"time"

	"github.com/opsline/triage/internal/attribution"
	"github.com/opsline/triage/internal/storage"
	"github.com/opsline/triage/internal/types"
)

var _ storage.Storage = (*Store)(nil)

// Writes go through RunInTransaction so the row mutation and its audit entry
// always land atomically. Reads run on the pool.

func (s *Store) CreateInboxItem(ctx context.Context, actx *attribution.Context, item *types.InboxItem) error {
	return s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.CreateInboxItem(ctx, actx, item)
	})
}

func (s *Store) GetInboxItem(ctx context.Context, id string) (*types.InboxItem, error) {
	return getInboxItem(ctx, s.db, id)
}

func (s *Store) ListInboxItems(ctx context.Context, filter types.InboxFilter) ([]*types.InboxItem, error) {
	return listInboxItems(ctx, s.db, filter)
}

func (s *Store) UpdateInboxItem(ctx context.Context, actx *attribution.Context, item *types.InboxItem) error {
	return s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.UpdateInboxItem(ctx, actx, item)
	})
}

func (s *Store) CreateIssue(ctx context.Context, actx *attribution.Context, issue *types.Issue) error {
	return s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.CreateIssue(ctx, actx, issue)
	})
}

func (s *Store) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	return getIssue(ctx, s.db, id)
}

func (s *Store) ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	return listIssues(ctx, s.db, filter)
}

func (s *Store) UpdateIssue(ctx context.Context, actx *attribution.Context, issue *types.Issue) error {
	return s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.UpdateIssue(ctx, actx, issue)
	})
}

func (s *Store) InsertSuppressionRule(ctx context.Context, actx *attribution.Context, rule *types.SuppressionRule) (int64, error) {
	var id int64
	err := s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var err error
		id, err = tx.InsertSuppressionRule(ctx, actx, rule)
		return err
	})
	return id, err
}

func (s *Store) GetSuppressionRule(ctx context.Context, key string) (*types.SuppressionRule, error) {
	return getSuppressionRule(ctx, s.db, key)
}

func (s *Store) IsSuppressed(ctx context.Context, key string, now time.Time) (bool, error) {
	return isSuppressed(ctx, s.db, key, now)
}
