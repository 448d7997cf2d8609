package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opsline/triage/internal/storage"
	"github.com/opsline/triage/internal/timeutil"
	"github.com/opsline/triage/internal/types"
)

func testRule(key string, ttl time.Duration) *types.SuppressionRule {
	return &types.SuppressionRule{
		SuppressionKey: key,
		ItemType:       types.ItemTypeFlaggedSignal,
		ExpiresAt:      timeutil.Now().Add(ttl),
		Reason:         "noisy",
	}
}

func TestInsertSuppressionRuleIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	actx := testActx()

	id1, err := store.InsertSuppressionRule(ctx, actx, testRule("sk1:aaa", time.Hour))
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	id2, err := store.InsertSuppressionRule(ctx, actx, testRule("sk1:aaa", time.Hour))
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if id1 != id2 {
		t.Errorf("re-insert must return existing id: %d vs %d", id1, id2)
	}

	rules, err := store.ListSuppressionRules(ctx, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rules) != 1 {
		t.Errorf("got %d rules, want 1", len(rules))
	}
}

func TestInsertSuppressionRuleExtendsExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	actx := testActx()

	if _, err := store.InsertSuppressionRule(ctx, actx, testRule("sk1:bbb", time.Hour)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	longer := testRule("sk1:bbb", 48*time.Hour)
	if _, err := store.InsertSuppressionRule(ctx, actx, longer); err != nil {
		t.Fatalf("re-insert: %v", err)
	}

	got, err := store.GetSuppressionRule(ctx, "sk1:bbb")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.ExpiresAt.Equal(timeutil.UTC(longer.ExpiresAt)) {
		t.Errorf("expiry not extended: %v", got.ExpiresAt)
	}

	// A shorter re-dismissal never shortens an existing rule.
	if _, err := store.InsertSuppressionRule(ctx, actx, testRule("sk1:bbb", time.Minute)); err != nil {
		t.Fatalf("short re-insert: %v", err)
	}
	got, err = store.GetSuppressionRule(ctx, "sk1:bbb")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.ExpiresAt.Equal(timeutil.UTC(longer.ExpiresAt)) {
		t.Errorf("expiry shortened: %v", got.ExpiresAt)
	}
}

func TestIsSuppressedRespectsExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	actx := testActx()

	if _, err := store.InsertSuppressionRule(ctx, actx, testRule("sk1:ccc", time.Hour)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	now := timeutil.Now()
	on, err := store.IsSuppressed(ctx, "sk1:ccc", now)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !on {
		t.Error("active rule must suppress")
	}

	// Past expiry the rule no longer blocks, GC or not.
	on, err = store.IsSuppressed(ctx, "sk1:ccc", now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if on {
		t.Error("expired rule must not suppress")
	}

	on, err = store.IsSuppressed(ctx, "sk1:unknown", now)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if on {
		t.Error("unknown key must not suppress")
	}
}

func TestDeleteSuppressionRule(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	actx := testActx()

	id, err := store.InsertSuppressionRule(ctx, actx, testRule("sk1:ddd", time.Hour))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.DeleteSuppressionRule(ctx, actx, "sk1:ddd"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetSuppressionRule(ctx, "sk1:ddd"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("rule must be gone: %v", err)
	}
	if err := store.DeleteSuppressionRule(ctx, actx, "sk1:ddd"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("double delete: got %v, want ErrNotFound", err)
	}

	// Deletion leaves an audit trail.
	entries, err := store.AuditHistory(ctx, "suppression_rules", itoa(id), 0)
	if err != nil {
		t.Fatalf("audit history: %v", err)
	}
	var sawDelete bool
	for _, e := range entries {
		if e.Op == types.OpDelete {
			sawDelete = true
		}
	}
	if !sawDelete {
		t.Error("delete must be audit-logged")
	}
}

func TestDeleteSuppressionRuleUnsuppressesIssue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	actx := testActx()
	now := timeutil.Now()

	is := makeIssue(t)
	is.Suppressed = true
	is.SuppressedAt = timePtr(now)
	is.SuppressedBy = "alice"
	if err := store.CreateIssue(ctx, actx, is); err != nil {
		t.Fatalf("create issue: %v", err)
	}

	// The dismissed item is how the rule and the issue are connected.
	it := makeItem(t)
	it.Type = types.ItemTypeIssue
	it.UnderlyingIssueID = is.ID
	it.UnderlyingSignalID = ""
	it.State = types.ItemDismissed
	it.DismissedAt = timePtr(now)
	it.DismissedBy = "alice"
	it.DismissedReason = "noise"
	it.SuppressionKey = "sk1:eee"
	it.ResolvedAt = timePtr(now)
	it.ResolutionReason = "dismissed"
	if err := store.CreateInboxItem(ctx, actx, it); err != nil {
		t.Fatalf("create item: %v", err)
	}
	if _, err := store.InsertSuppressionRule(ctx, actx, testRule("sk1:eee", time.Hour)); err != nil {
		t.Fatalf("insert rule: %v", err)
	}

	if err := store.DeleteSuppressionRule(ctx, actx, "sk1:eee"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := store.GetIssue(ctx, is.ID)
	if err != nil {
		t.Fatalf("get issue: %v", err)
	}
	if got.Suppressed {
		t.Error("removing the rule must clear the issue's suppressed flag")
	}
	if got.SuppressedAt != nil || got.SuppressedBy != "" {
		t.Errorf("suppression fields must be cleared: %v %q", got.SuppressedAt, got.SuppressedBy)
	}

	// The flag change is an ordinary audited issue update.
	entries, err := store.AuditHistory(ctx, "issues", is.ID, 0)
	if err != nil {
		t.Fatalf("audit history: %v", err)
	}
	var sawUpdate bool
	for _, e := range entries {
		if e.Op == types.OpUpdate {
			sawUpdate = true
		}
	}
	if !sawUpdate {
		t.Error("unsuppressing must be audit-logged")
	}
}

func TestDeleteExpiredSuppressionRules(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	actx := testActx()

	if _, err := store.InsertSuppressionRule(ctx, actx, testRule("sk1:live", 24*time.Hour)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	dead := testRule("sk1:dead", time.Minute)
	if _, err := store.InsertSuppressionRule(ctx, actx, dead); err != nil {
		t.Fatalf("insert: %v", err)
	}

	removed, err := store.DeleteExpiredSuppressionRules(ctx, actx, timeutil.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("gc: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed %d, want 1", removed)
	}

	rules, err := store.ListSuppressionRules(ctx, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rules) != 1 || rules[0].SuppressionKey != "sk1:live" {
		t.Errorf("wrong survivor: %+v", rules)
	}

	// Idempotent: a second sweep finds nothing.
	removed, err = store.DeleteExpiredSuppressionRules(ctx, actx, timeutil.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("gc: %v", err)
	}
	if removed != 0 {
		t.Errorf("second gc removed %d, want 0", removed)
	}
}

func TestListSuppressionRulesExcludesExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	actx := testActx()

	live := testRule("sk1:live2", 24*time.Hour)
	expired := testRule("sk1:old", time.Hour)
	expired.ExpiresAt = timeutil.Now().Add(-time.Hour)

	if _, err := store.InsertSuppressionRule(ctx, actx, live); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.InsertSuppressionRule(ctx, actx, expired); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rules, err := store.ListSuppressionRules(ctx, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rules) != 1 || rules[0].SuppressionKey != "sk1:live2" {
		t.Errorf("active-only list wrong: %+v", rules)
	}

	all, err := store.ListSuppressionRules(ctx, true)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d rules, want 2", len(all))
	}
}

func TestRecurrenceMarkers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := timeutil.Now()

	if err := store.RecordRecurrence(ctx, "agg-x", now); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := store.HasRecurrenceSince(ctx, "agg-x", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !got {
		t.Error("recurrence within window must be found")
	}

	got, err = store.HasRecurrenceSince(ctx, "agg-x", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if got {
		t.Error("recurrence before window must not be found")
	}

	got, err = store.HasRecurrenceSince(ctx, "agg-other", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if got {
		t.Error("other key must not match")
	}
}
