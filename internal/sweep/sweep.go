// Package sweep implements the timer-driven transitions: snooze expiry and
// the regression watch.
//
// Sweeps scan for candidate rows, then transition each row in its own
// transaction with the precondition re-checked inside it. A crash mid-sweep
// leaves only already-processed rows changed, and re-running a sweep over
// already-transitioned rows is a no-op.
package sweep

import (
	"context"
	"errors"
	"time"

	"github.com/opsline/triage/internal/attribution"
	"github.com/opsline/triage/internal/debug"
	"github.com/opsline/triage/internal/lifecycle"
	"github.com/opsline/triage/internal/storage"
	"github.com/opsline/triage/internal/timeutil"
	"github.com/opsline/triage/internal/types"
)

// Sweeper runs the timer entry points against the store.
type Sweeper struct {
	store  storage.Storage
	issues *lifecycle.Issues
}

// New returns a sweeper.
func New(store storage.Storage, issues *lifecycle.Issues) *Sweeper {
	return &Sweeper{store: store, issues: issues}
}

// ProcessSnoozeExpiry resurfaces snoozed inbox items and issues whose
// snooze_until has passed. Returns how many of each were resurfaced.
//
// Resurfaced items go back to proposed with resurfaced_at set and read_at
// cleared, so "unread since resurfacing" is computable downstream.
func (s *Sweeper) ProcessSnoozeExpiry(ctx context.Context) (itemsResurfaced, issuesResurfaced int, err error) {
	actx := attribution.System(attribution.SourceSweep)
	now := timeutil.Now()

	snoozed := types.ItemSnoozed
	items, err := s.store.ListInboxItems(ctx, types.InboxFilter{State: &snoozed})
	if err != nil {
		return 0, 0, err
	}
	for _, it := range items {
		if it.SnoozeUntil == nil || it.SnoozeUntil.After(now) {
			continue
		}
		id := it.ID
		err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
			cur, err := tx.GetInboxItem(ctx, id)
			if err != nil {
				return err
			}
			// Re-check inside the transaction: another sweep may have
			// processed the row between scan and update.
			if cur.State != types.ItemSnoozed || cur.SnoozeUntil == nil || cur.SnoozeUntil.After(now) {
				return nil
			}
			resurfacedAt := timeutil.Now()
			cur.State = types.ItemProposed
			cur.SnoozeUntil = nil
			cur.ResurfacedAt = &resurfacedAt
			cur.ReadAt = nil
			if err := tx.UpdateInboxItem(ctx, actx, cur); err != nil {
				return err
			}
			itemsResurfaced++
			return nil
		})
		if err != nil {
			return itemsResurfaced, issuesResurfaced, err
		}
	}

	issueSnoozed := types.IssueSnoozed
	issues, err := s.store.ListIssues(ctx, types.IssueFilter{State: &issueSnoozed})
	if err != nil {
		return itemsResurfaced, 0, err
	}
	for _, is := range issues {
		if is.SnoozeUntil == nil || is.SnoozeUntil.After(now) {
			continue
		}
		id := is.ID
		err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
			cur, err := tx.GetIssue(ctx, id)
			if err != nil {
				return err
			}
			if cur.State != types.IssueSnoozed || cur.SnoozeUntil == nil || cur.SnoozeUntil.After(now) {
				return nil
			}
			cur.State = types.IssueSurfaced
			cur.SnoozeUntil = nil
			if err := tx.UpdateIssue(ctx, actx, cur); err != nil {
				return err
			}
			issuesResurfaced++
			return nil
		})
		if err != nil {
			return itemsResurfaced, issuesResurfaced, err
		}
	}

	debug.Logf("snooze sweep: %d items, %d issues resurfaced", itemsResurfaced, issuesResurfaced)
	return itemsResurfaced, issuesResurfaced, nil
}

// ProcessRegressionWatch settles issues whose regression watch deadline has
// passed: issues with a recorded signal recurrence since resolution regress,
// the rest close for good. Returns (closed, regressed).
func (s *Sweeper) ProcessRegressionWatch(ctx context.Context) (closed, regressed int, err error) {
	actx := attribution.System(attribution.SourceSweep)
	now := timeutil.Now()

	watching := types.IssueRegressionWatch
	issues, err := s.store.ListIssues(ctx, types.IssueFilter{State: &watching})
	if err != nil {
		return 0, 0, err
	}
	for _, is := range issues {
		if is.RegressionWatchUntil == nil || is.RegressionWatchUntil.After(now) {
			continue
		}

		var since time.Time
		if is.ResolvedAt != nil {
			since = *is.ResolvedAt
		}
		recurred, err := s.store.HasRecurrenceSince(ctx, is.AggregationKey, since)
		if err != nil {
			return closed, regressed, err
		}

		if recurred {
			err = s.issues.Regress(ctx, actx, is.ID)
		} else {
			err = s.issues.Close(ctx, actx, is.ID)
		}
		if err != nil {
			// Another run settled this row between scan and transition.
			if lifecycle.IsTransitionError(err) || errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return closed, regressed, err
		}
		if recurred {
			regressed++
		} else {
			closed++
		}
	}

	debug.Logf("regression sweep: %d closed, %d regressed", closed, regressed)
	return closed, regressed, nil
}

// Run executes both sweeps back to back. The CLI's "sweep all" entry point.
func (s *Sweeper) Run(ctx context.Context) error {
	if _, _, err := s.ProcessSnoozeExpiry(ctx); err != nil {
		return err
	}
	_, _, err := s.ProcessRegressionWatch(ctx)
	return err
}
