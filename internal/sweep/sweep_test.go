package sweep

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsline/triage/internal/attribution"
	"github.com/opsline/triage/internal/lifecycle"
	"github.com/opsline/triage/internal/storage/sqlite"
	"github.com/opsline/triage/internal/timeutil"
	"github.com/opsline/triage/internal/types"
)

func newTestSweeper(t *testing.T) (*Sweeper, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "triage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return New(store, lifecycle.NewIssues(store)), store
}

func testActx() *attribution.Context {
	return attribution.Begin("alice", attribution.SourceCLI)
}

var seq int

func seedSnoozedItem(t *testing.T, store *sqlite.Store, until time.Time) *types.InboxItem {
	t.Helper()
	seq++
	it := &types.InboxItem{
		ID:                 fmt.Sprintf("inb-sw%04d", seq),
		Type:               types.ItemTypeFlaggedSignal,
		State:              types.ItemSnoozed,
		Severity:           types.SeverityMedium,
		UnderlyingSignalID: fmt.Sprintf("sig-sw%04d", seq),
		SnoozeUntil:        &until,
	}
	require.NoError(t, store.CreateInboxItem(context.Background(), testActx(), it))
	return it
}

func seedSnoozedIssue(t *testing.T, store *sqlite.Store, until time.Time) *types.Issue {
	t.Helper()
	seq++
	is := &types.Issue{
		ID:          fmt.Sprintf("iss-sw%04d", seq),
		Type:        types.IssueRisk,
		State:       types.IssueSnoozed,
		Severity:    types.SeverityMedium,
		Title:       fmt.Sprintf("snoozed issue %d", seq),
		SnoozeUntil: &until,
	}
	require.NoError(t, store.CreateIssue(context.Background(), testActx(), is))
	return is
}

func seedWatchedIssue(t *testing.T, store *sqlite.Store, until time.Time) *types.Issue {
	t.Helper()
	seq++
	resolved := until.Add(-lifecycle.DefaultWatchWindow)
	is := &types.Issue{
		ID:                   fmt.Sprintf("iss-rw%04d", seq),
		Type:                 types.IssueFinancial,
		State:                types.IssueRegressionWatch,
		Severity:             types.SeverityMedium,
		Title:                fmt.Sprintf("watched issue %d", seq),
		AggregationKey:       fmt.Sprintf("agg-rw%04d", seq),
		ResolvedAt:           &resolved,
		RegressionWatchUntil: &until,
	}
	require.NoError(t, store.CreateIssue(context.Background(), testActx(), is))
	return is
}

func TestSnoozeExpiryResurfaces(t *testing.T) {
	sw, store := newTestSweeper(t)
	ctx := context.Background()
	now := timeutil.Now()

	expiredItem := seedSnoozedItem(t, store, now.Add(-time.Minute))
	activeItem := seedSnoozedItem(t, store, now.Add(time.Hour))
	expiredIssue := seedSnoozedIssue(t, store, now.Add(-time.Minute))

	items, issues, err := sw.ProcessSnoozeExpiry(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, items)
	assert.Equal(t, 1, issues)

	got, err := store.GetInboxItem(ctx, expiredItem.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ItemProposed, got.State)
	assert.Nil(t, got.SnoozeUntil)
	require.NotNil(t, got.ResurfacedAt)
	assert.Nil(t, got.ReadAt)
	assert.True(t, got.UnreadSinceResurfacing())

	still, err := store.GetInboxItem(ctx, activeItem.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ItemSnoozed, still.State)

	gotIssue, err := store.GetIssue(ctx, expiredIssue.ID)
	require.NoError(t, err)
	assert.Equal(t, types.IssueSurfaced, gotIssue.State)
}

func TestSnoozeExpiryClearsReadAt(t *testing.T) {
	sw, store := newTestSweeper(t)
	ctx := context.Background()
	now := timeutil.Now()

	it := seedSnoozedItem(t, store, now.Add(-time.Minute))
	readAt := now.Add(-time.Hour)
	it.ReadAt = &readAt
	require.NoError(t, store.UpdateInboxItem(ctx, testActx(), it))

	_, _, err := sw.ProcessSnoozeExpiry(ctx)
	require.NoError(t, err)

	got, err := store.GetInboxItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ReadAt, "resurfacing must clear read_at")
}

func TestSnoozeExpiryIdempotent(t *testing.T) {
	sw, store := newTestSweeper(t)
	ctx := context.Background()

	seedSnoozedItem(t, store, timeutil.Now().Add(-time.Minute))
	seedSnoozedIssue(t, store, timeutil.Now().Add(-time.Minute))

	items, issues, err := sw.ProcessSnoozeExpiry(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, items)
	assert.Equal(t, 1, issues)

	items, issues, err = sw.ProcessSnoozeExpiry(ctx)
	require.NoError(t, err)
	assert.Zero(t, items, "second run must be a no-op")
	assert.Zero(t, issues)
}

func TestRegressionWatchClosesWithoutRecurrence(t *testing.T) {
	sw, store := newTestSweeper(t)
	ctx := context.Background()
	now := timeutil.Now()

	expired := seedWatchedIssue(t, store, now.Add(-time.Minute))
	active := seedWatchedIssue(t, store, now.Add(24*time.Hour))

	// A lingering item pointing at the expiring issue.
	seq++
	it := &types.InboxItem{
		ID:                fmt.Sprintf("inb-rw%04d", seq),
		Type:              types.ItemTypeIssue,
		State:             types.ItemProposed,
		Severity:          types.SeverityMedium,
		UnderlyingIssueID: expired.ID,
	}
	require.NoError(t, store.CreateInboxItem(ctx, testActx(), it))

	closed, regressed, err := sw.ProcessRegressionWatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
	assert.Zero(t, regressed)

	got, err := store.GetIssue(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, types.IssueClosed, got.State)

	gotItem, err := store.GetInboxItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ReasonIssueClosed, gotItem.ResolutionReason)

	still, err := store.GetIssue(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, types.IssueRegressionWatch, still.State, "unexpired watch must stay")
}

func TestRegressionWatchRegressesOnRecurrence(t *testing.T) {
	sw, store := newTestSweeper(t)
	ctx := context.Background()
	now := timeutil.Now()

	is := seedWatchedIssue(t, store, now.Add(-time.Minute))
	require.NoError(t, store.RecordRecurrence(ctx, is.AggregationKey, now.Add(-time.Hour)))

	closed, regressed, err := sw.ProcessRegressionWatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, closed)
	assert.Equal(t, 1, regressed)

	got, err := store.GetIssue(ctx, is.ID)
	require.NoError(t, err)
	assert.Equal(t, types.IssueRegressed, got.State)
	require.NotNil(t, got.RegressedAt)
}

func TestRegressionWatchIgnoresPreResolutionRecurrence(t *testing.T) {
	sw, store := newTestSweeper(t)
	ctx := context.Background()
	now := timeutil.Now()

	is := seedWatchedIssue(t, store, now.Add(-time.Minute))
	// Recurrence before resolution does not count against the watch.
	require.NoError(t, store.RecordRecurrence(ctx, is.AggregationKey, is.ResolvedAt.Add(-time.Hour)))

	closed, regressed, err := sw.ProcessRegressionWatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
	assert.Zero(t, regressed)
}

func TestRegressionWatchIdempotent(t *testing.T) {
	sw, store := newTestSweeper(t)
	ctx := context.Background()

	seedWatchedIssue(t, store, timeutil.Now().Add(-time.Minute))

	closed, _, err := sw.ProcessRegressionWatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	closed, regressed, err := sw.ProcessRegressionWatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, closed)
	assert.Zero(t, regressed)
}

func TestSweepWritesAreAudited(t *testing.T) {
	sw, store := newTestSweeper(t)
	ctx := context.Background()

	it := seedSnoozedItem(t, store, timeutil.Now().Add(-time.Minute))
	_, _, err := sw.ProcessSnoozeExpiry(ctx)
	require.NoError(t, err)

	entries, err := store.AuditHistory(ctx, "inbox_items", it.ID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, attribution.ActorSystem, entries[0].Actor)
	assert.Equal(t, attribution.SourceSweep, entries[0].Source)
}
