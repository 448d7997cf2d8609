package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/opsline/triage/internal/attribution"
	"github.com/opsline/triage/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "triage.db")
	store, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close test store: %v", err)
		}
	})
	return store
}

func testActx() *attribution.Context {
	return attribution.Begin("alice", attribution.SourceCLI)
}

var itemSeq int

func makeItem(t *testing.T) *types.InboxItem {
	t.Helper()
	itemSeq++
	return &types.InboxItem{
		ID:                 fmt.Sprintf("inb-test%03d", itemSeq),
		Type:               types.ItemTypeFlaggedSignal,
		State:              types.ItemProposed,
		Severity:           types.SeverityMedium,
		UnderlyingSignalID: fmt.Sprintf("sig-%03d", itemSeq),
		ClientID:           "acme",
		EngagementID:       "eng-1",
		SignalSource:       "harvest",
		SignalRule:         "hours_anomaly",
	}
}

var issueSeq int

func makeIssue(t *testing.T) *types.Issue {
	t.Helper()
	issueSeq++
	return &types.Issue{
		ID:             fmt.Sprintf("iss-test%03d", issueSeq),
		Type:           types.IssueFinancial,
		State:          types.IssueDetected,
		Severity:       types.SeverityHigh,
		Title:          fmt.Sprintf("budget overrun %d", issueSeq),
		ClientID:       "acme",
		EngagementID:   "eng-1",
		AggregationKey: fmt.Sprintf("agg-%03d", issueSeq),
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
