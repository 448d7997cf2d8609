package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/opsline/triage/internal/types"
	"github.com/opsline/triage/internal/ui"
)

// printJSON marshals v to indented JSON on stdout.
func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: marshaling JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

// fatal prints an error and exits. In JSON mode the error goes out as a
// JSON object so scripted callers always get parseable output.
func fatal(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if jsonOutput {
		printJSON(map[string]string{"error": msg})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	closeStore()
	os.Exit(1)
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

func printItemRow(it *types.InboxItem) {
	title := it.UnderlyingIssueID
	if title == "" {
		title = it.SignalSource + ": " + it.SignalRule
	}
	flag := " "
	if it.UnreadSinceResurfacing() {
		flag = "*"
	}
	fmt.Printf("%s%-14s  %-14s  %-15s  %-8s  %s\n",
		flag, it.ID, it.Type,
		ui.RenderInboxState(it.State),
		ui.RenderSeverity(it.Severity),
		ui.TruncateSimple(title, 50))
}

func printItemDetail(it *types.InboxItem) {
	fmt.Printf("%s  %s\n", ui.RenderAccent(it.ID), ui.RenderInboxState(it.State))
	fmt.Printf("  type:      %s\n", it.Type)
	fmt.Printf("  severity:  %s\n", ui.RenderSeverity(it.Severity))
	if it.UnderlyingIssueID != "" {
		fmt.Printf("  issue:     %s\n", it.UnderlyingIssueID)
	}
	if it.UnderlyingSignalID != "" {
		fmt.Printf("  signal:    %s (%s: %s)\n", it.UnderlyingSignalID, it.SignalSource, it.SignalRule)
	}
	if it.ClientID != "" {
		fmt.Printf("  client:    %s\n", it.ClientID)
	}
	if it.EngagementID != "" {
		fmt.Printf("  engagement: %s\n", it.EngagementID)
	}
	fmt.Printf("  proposed:  %s\n", formatTime(it.ProposedAt))
	if it.SnoozeUntil != nil {
		fmt.Printf("  snoozed:   until %s\n", formatTimePtr(it.SnoozeUntil))
	}
	if it.ResurfacedAt != nil {
		fmt.Printf("  resurfaced: %s\n", formatTimePtr(it.ResurfacedAt))
	}
	if it.State == types.ItemDismissed {
		fmt.Printf("  dismissed: %s by %s (%s)\n", formatTimePtr(it.DismissedAt), it.DismissedBy, it.DismissedReason)
		fmt.Printf("  suppression key: %s\n", ui.RenderMuted(it.SuppressionKey))
	}
	if it.State == types.ItemLinkedToIssue {
		fmt.Printf("  linked to: %s (%s)\n", it.ResolvedIssueID, it.ResolutionReason)
	}
	if it.TrustDegraded {
		fmt.Printf("  %s\n", ui.WarnStyle.Render("evidence unparseable: trust degraded"))
	}
}

func printIssueRow(is *types.Issue) {
	assignee := is.AssignedTo
	if assignee == "" {
		assignee = "-"
	}
	fmt.Printf("%-14s  %-17s  %-19s  %-8s  %-12s  %s\n",
		is.ID, is.Type,
		ui.RenderIssueState(is.State),
		ui.RenderSeverity(is.Severity),
		assignee,
		ui.TruncateSimple(is.Title, 44))
}

func printIssueDetail(is *types.Issue) {
	fmt.Printf("%s  %s\n", ui.RenderAccent(is.ID), ui.RenderIssueState(is.State))
	fmt.Printf("  title:     %s\n", is.Title)
	fmt.Printf("  type:      %s\n", is.Type)
	fmt.Printf("  severity:  %s", ui.RenderSeverity(is.Severity))
	if is.Escalated {
		fmt.Printf(" %s", ui.BadStyle.Render("(escalated)"))
	}
	fmt.Println()
	if is.ClientID != "" {
		fmt.Printf("  client:    %s\n", is.ClientID)
	}
	if is.EngagementID != "" {
		fmt.Printf("  engagement: %s\n", is.EngagementID)
	}
	if is.AggregationKey != "" {
		fmt.Printf("  aggregation: %s\n", ui.RenderMuted(is.AggregationKey))
	}
	fmt.Printf("  detected:  %s\n", formatTime(is.DetectedAt))
	if is.AssignedTo != "" {
		fmt.Printf("  assignee:  %s (since %s)\n", is.AssignedTo, formatTimePtr(is.AssignedAt))
	}
	if is.SnoozeUntil != nil {
		fmt.Printf("  snoozed:   until %s by %s\n", formatTimePtr(is.SnoozeUntil), is.SnoozedBy)
	}
	if is.State == types.IssueRegressionWatch {
		fmt.Printf("  resolved:  %s by %s\n", formatTimePtr(is.ResolvedAt), is.ResolvedBy)
		fmt.Printf("  watching:  until %s\n", formatTimePtr(is.RegressionWatchUntil))
	}
	if is.RegressedAt != nil {
		fmt.Printf("  regressed: %s\n", formatTimePtr(is.RegressedAt))
	}
	if is.ClosedAt != nil {
		fmt.Printf("  closed:    %s\n", formatTimePtr(is.ClosedAt))
	}
	if is.Suppressed {
		fmt.Printf("  %s\n", ui.RenderMuted("suppressed"))
	}
	if is.TrustDegraded {
		fmt.Printf("  %s\n", ui.WarnStyle.Render("evidence unparseable: trust degraded"))
	}
}
