package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/opsline/triage/internal/attribution"
	"github.com/opsline/triage/internal/storage"
	"github.com/opsline/triage/internal/timeutil"
	"github.com/opsline/triage/internal/types"
)

func TestWriteWithoutAttributionRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateInboxItem(ctx, nil, makeItem(t)); !errors.Is(err, storage.ErrNoAttribution) {
		t.Errorf("nil context: got %v, want ErrNoAttribution", err)
	}

	empty := &attribution.Context{}
	if err := store.CreateIssue(ctx, empty, makeIssue(t)); !errors.Is(err, storage.ErrNoAttribution) {
		t.Errorf("empty context: got %v, want ErrNoAttribution", err)
	}
}

func TestMaintenanceOverrideStillAudited(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	actx := attribution.Maintenance(attribution.SourceCLI)

	item := makeItem(t)
	if err := store.CreateInboxItem(ctx, actx, item); err != nil {
		t.Fatalf("maintenance write rejected: %v", err)
	}

	entries, err := store.AuditHistory(ctx, "inbox_items", item.ID, 0)
	if err != nil {
		t.Fatalf("audit history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d audit entries, want 1", len(entries))
	}
	if entries[0].Actor != attribution.ActorMaintenance {
		t.Errorf("actor: got %q, want maintenance", entries[0].Actor)
	}
}

func TestExactlyOneUnderlyingEnforced(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	actx := testActx()

	both := makeItem(t)
	both.UnderlyingIssueID = "iss-1"
	err := store.CreateInboxItem(ctx, actx, both)
	if !storage.IsInvariantError(err) {
		t.Errorf("both underlyings: got %v, want invariant error", err)
	}

	neither := makeItem(t)
	neither.UnderlyingSignalID = ""
	err = store.CreateInboxItem(ctx, actx, neither)
	if !storage.IsInvariantError(err) {
		t.Errorf("no underlying: got %v, want invariant error", err)
	}
}

func TestTypeUnderlyingMapping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	actx := testActx()

	// An issue-type item pointing at a signal is a category error even
	// though exactly one underlying is set.
	it := makeItem(t)
	it.Type = types.ItemTypeIssue
	err := store.CreateInboxItem(ctx, actx, it)
	var ie *storage.InvariantError
	if !errors.As(err, &ie) {
		t.Fatalf("got %v, want invariant error", err)
	}
	if ie.Rule != ruleTypeUnderlyingMapping {
		t.Errorf("rule: got %q, want %q", ie.Rule, ruleTypeUnderlyingMapping)
	}
}

func TestSnoozedRequiresUntil(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	actx := testActx()

	it := makeItem(t)
	it.State = types.ItemSnoozed
	if err := store.CreateInboxItem(ctx, actx, it); !storage.IsInvariantError(err) {
		t.Errorf("snoozed without until: got %v, want invariant error", err)
	}
}

func TestDismissedRequiresAuditFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	actx := testActx()
	now := timeutil.Now()

	it := makeItem(t)
	it.State = types.ItemDismissed
	it.ResolvedAt = &now
	it.DismissedAt = &now
	// Missing DismissedBy and SuppressionKey.
	err := store.CreateInboxItem(ctx, actx, it)
	var ie *storage.InvariantError
	if !errors.As(err, &ie) {
		t.Fatalf("got %v, want invariant error", err)
	}
	if ie.Rule != ruleDismissedRequiresAudit {
		t.Errorf("rule: got %q, want %q", ie.Rule, ruleDismissedRequiresAudit)
	}
}

func TestResolvedNeverPersisted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	actx := testActx()

	is := makeIssue(t)
	is.State = types.IssueResolved
	err := store.CreateIssue(ctx, actx, is)
	var ie *storage.InvariantError
	if !errors.As(err, &ie) {
		t.Fatalf("got %v, want invariant error", err)
	}
	if ie.Rule != ruleNoPersistedResolved {
		t.Errorf("rule: got %q, want %q", ie.Rule, ruleNoPersistedResolved)
	}

	// Same on update of an existing row.
	good := makeIssue(t)
	if err := store.CreateIssue(ctx, actx, good); err != nil {
		t.Fatalf("create: %v", err)
	}
	good.State = types.IssueResolved
	if err := store.UpdateIssue(ctx, actx, good); !storage.IsInvariantError(err) {
		t.Errorf("update to resolved: got %v, want invariant error", err)
	}
}

func TestRegressionWatchRequiresDeadline(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	actx := testActx()
	now := timeutil.Now()

	is := makeIssue(t)
	is.State = types.IssueRegressionWatch
	is.ResolvedAt = &now
	// Missing RegressionWatchUntil.
	if err := store.CreateIssue(ctx, actx, is); !storage.IsInvariantError(err) {
		t.Errorf("watch without deadline: got %v, want invariant error", err)
	}
}

func TestClosedRequiresClosedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	actx := testActx()
	now := timeutil.Now()

	is := makeIssue(t)
	is.State = types.IssueClosed
	if err := store.CreateIssue(ctx, actx, is); !storage.IsInvariantError(err) {
		t.Errorf("closed without closed_at: got %v, want invariant error", err)
	}

	// And the converse: closed_at on a non-closed issue.
	is2 := makeIssue(t)
	is2.ClosedAt = &now
	if err := store.CreateIssue(ctx, actx, is2); !storage.IsInvariantError(err) {
		t.Errorf("closed_at on open issue: got %v, want invariant error", err)
	}
}

func TestInvariantRejectionWritesNothing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	actx := testActx()

	it := makeItem(t)
	it.State = types.ItemSnoozed // missing snooze_until
	if err := store.CreateInboxItem(ctx, actx, it); err == nil {
		t.Fatal("expected rejection")
	}

	if _, err := store.GetInboxItem(ctx, it.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("rejected row must not exist: %v", err)
	}
	entries, err := store.AuditHistory(ctx, "inbox_items", it.ID, 0)
	if err != nil {
		t.Fatalf("audit history: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("rejected write must leave no audit rows, got %d", len(entries))
	}
}
