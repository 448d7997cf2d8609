package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsline/triage/internal/config"
	"github.com/opsline/triage/internal/lifecycle"
	"github.com/opsline/triage/internal/timeparsing"
	"github.com/opsline/triage/internal/timeutil"
	"github.com/opsline/triage/internal/types"
	"github.com/opsline/triage/internal/ui"
)

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Work the triage inbox",
}

var inboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List inbox items",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		filter := types.InboxFilter{}
		if s, _ := cmd.Flags().GetString("state"); s != "" {
			st := types.InboxState(s)
			if !st.IsValid() {
				fatal("invalid state: %s", s)
			}
			filter.State = &st
		}
		if s, _ := cmd.Flags().GetString("type"); s != "" {
			t := types.InboxItemType(s)
			if !t.IsValid() {
				fatal("invalid type: %s", s)
			}
			filter.Type = &t
		}
		filter.ClientID, _ = cmd.Flags().GetString("client")
		filter.EngagementID, _ = cmd.Flags().GetString("engagement")
		filter.UnreadOnly, _ = cmd.Flags().GetBool("unread")
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		items, err := store.ListInboxItems(rootCtx, filter)
		if err != nil {
			fatal("listing inbox: %v", err)
		}
		if today, _ := cmd.Flags().GetBool("today"); today {
			loc, err := timeutil.OrgLocation(config.GetString(config.KeyOrgTimezone))
			if err != nil {
				fatal("%v", err)
			}
			items = proposedOnOrgDay(items, time.Now(), loc)
		}
		if jsonOutput {
			printJSON(items)
			return
		}
		if len(items) == 0 {
			fmt.Println("Inbox is empty.")
			return
		}
		for _, it := range items {
			printItemRow(it)
		}
	},
}

var inboxShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one inbox item with its available actions",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		it, err := store.GetInboxItem(rootCtx, args[0])
		if err != nil {
			fatal("%v", err)
		}
		if jsonOutput {
			printJSON(it)
			return
		}
		printItemDetail(it)
		if it.State == types.ItemProposed {
			fmt.Printf("  actions:   %s\n", strings.Join(lifecycle.ActionsFor(it.Type), ", "))
		}
	},
}

var inboxReadCmd = &cobra.Command{
	Use:   "read <id...>",
	Short: "Mark inbox items as read",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		actx := beginAttribution()
		for _, id := range args {
			if err := inboxMgr.MarkRead(rootCtx, actx, id); err != nil {
				fatal("marking %s read: %v", id, err)
			}
		}
		if jsonOutput {
			printJSON(map[string]interface{}{"read": args})
			return
		}
		fmt.Printf("Marked %d item(s) read\n", len(args))
	},
}

var inboxSnoozeCmd = &cobra.Command{
	Use:   "snooze <id> <until>",
	Short: "Snooze an inbox item (2d, 1w, tomorrow, 2026-09-01)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		d, err := timeparsing.ParseDuration(args[1], time.Now().UTC())
		if err != nil {
			fatal("parsing snooze time %q: %v", args[1], err)
		}
		if err := inboxMgr.Snooze(rootCtx, beginAttribution(), args[0], d); err != nil {
			fatalAction(err)
		}
		reportAction("Snoozed", args[0])
	},
}

var inboxDismissCmd = &cobra.Command{
	Use:   "dismiss <id>",
	Short: "Dismiss an item and suppress its condition class",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")
		if reason == "" {
			fatal("--reason is required")
		}
		if err := inboxMgr.Dismiss(rootCtx, beginAttribution(), args[0], reason); err != nil {
			fatalAction(err)
		}
		reportAction("Dismissed", args[0])
	},
}

var inboxTagCmd = &cobra.Command{
	Use:   "tag <id> <issue-type>",
	Short: "Tag an item, promoting its condition to a tracked issue",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		issueType := types.IssueType(args[1])
		if !issueType.IsValid() {
			fatal("invalid issue type: %s (financial, schedule_delivery, communication, risk)", args[1])
		}
		title, _ := cmd.Flags().GetString("title")
		issueID, err := inboxMgr.Tag(rootCtx, beginAttribution(), args[0], issueType, title)
		if err != nil {
			fatalAction(err)
		}
		if jsonOutput {
			printJSON(map[string]string{"item": args[0], "issue": issueID})
			return
		}
		fmt.Printf("Tagged %s as %s issue %s\n", args[0], issueType, ui.RenderAccent(issueID))
	},
}

var inboxAssignCmd = &cobra.Command{
	Use:   "assign <id> <issue-type>",
	Short: "Assign an item's condition to someone, starting work on it",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		issueType := types.IssueType(args[1])
		if !issueType.IsValid() {
			fatal("invalid issue type: %s", args[1])
		}
		assignee, _ := cmd.Flags().GetString("to")
		if assignee == "" {
			fatal("--to is required")
		}
		title, _ := cmd.Flags().GetString("title")
		issueID, err := inboxMgr.Assign(rootCtx, beginAttribution(), args[0], assignee, issueType, title)
		if err != nil {
			fatalAction(err)
		}
		if jsonOutput {
			printJSON(map[string]string{"item": args[0], "issue": issueID, "assignee": assignee})
			return
		}
		fmt.Printf("Assigned %s to %s as issue %s\n", args[0], assignee, ui.RenderAccent(issueID))
	},
}

var inboxLinkCmd = &cobra.Command{
	Use:   "link <id> <issue-id>",
	Short: "Link an orphan item to an existing issue",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := inboxMgr.Link(rootCtx, beginAttribution(), args[0], args[1]); err != nil {
			fatalAction(err)
		}
		reportAction("Linked", args[0])
	},
}

var inboxCreateCmd = &cobra.Command{
	Use:   "create <id> <issue-type>",
	Short: "Create a new issue from an orphan item",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		issueType := types.IssueType(args[1])
		if !issueType.IsValid() {
			fatal("invalid issue type: %s", args[1])
		}
		title, _ := cmd.Flags().GetString("title")
		issueID, err := inboxMgr.Create(rootCtx, beginAttribution(), args[0], issueType, title)
		if err != nil {
			fatalAction(err)
		}
		if jsonOutput {
			printJSON(map[string]string{"item": args[0], "issue": issueID})
			return
		}
		fmt.Printf("Created issue %s from %s\n", ui.RenderAccent(issueID), args[0])
	},
}

var inboxSelectCmd = &cobra.Command{
	Use:   "select <id> <issue-id>",
	Short: "Resolve an ambiguous item to one of its candidate issues",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := inboxMgr.Select(rootCtx, beginAttribution(), args[0], args[1]); err != nil {
			fatalAction(err)
		}
		reportAction("Selected", args[1])
	},
}

var inboxProposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Surface a new inbox item (detector entry point)",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		itemType, _ := cmd.Flags().GetString("type")
		severity, _ := cmd.Flags().GetString("severity")
		p := lifecycle.Proposal{
			Type:     types.InboxItemType(itemType),
			Severity: types.Severity(severity),
		}
		p.UnderlyingIssueID, _ = cmd.Flags().GetString("issue")
		p.UnderlyingSignalID, _ = cmd.Flags().GetString("signal")
		p.ClientID, _ = cmd.Flags().GetString("client")
		p.BrandID, _ = cmd.Flags().GetString("brand")
		p.EngagementID, _ = cmd.Flags().GetString("engagement")
		p.SignalSource, _ = cmd.Flags().GetString("source")
		p.SignalRule, _ = cmd.Flags().GetString("rule")
		p.Evidence, _ = cmd.Flags().GetString("evidence")

		it, err := inboxMgr.Propose(rootCtx, beginAttribution(), p)
		if err != nil {
			fatal("%v", err)
		}
		if jsonOutput {
			printJSON(it)
			return
		}
		fmt.Printf("Proposed %s\n", ui.RenderAccent(it.ID))
	},
}

// proposedOnOrgDay keeps the items proposed on day's calendar day in the
// org timezone. Day boundaries follow loc, not the machine zone.
func proposedOnOrgDay(items []*types.InboxItem, day time.Time, loc *time.Location) []*types.InboxItem {
	kept := items[:0]
	for _, it := range items {
		if timeutil.SameOrgDay(it.ProposedAt, day, loc) {
			kept = append(kept, it)
		}
	}
	return kept
}

// fatalAction reports a lifecycle failure. Transition rejections already
// name the actions still available from the current state.
func fatalAction(err error) {
	fatal("%v", err)
}

func reportAction(verb, id string) {
	if jsonOutput {
		printJSON(map[string]string{"id": id, "result": strings.ToLower(verb)})
		return
	}
	fmt.Printf("%s %s\n", verb, id)
}

func init() {
	inboxListCmd.Flags().String("state", "", "Filter by state (proposed, snoozed, dismissed, linked_to_issue)")
	inboxListCmd.Flags().String("type", "", "Filter by type (issue, flagged_signal, orphan, ambiguous)")
	inboxListCmd.Flags().String("client", "", "Filter by client id")
	inboxListCmd.Flags().String("engagement", "", "Filter by engagement id")
	inboxListCmd.Flags().Bool("unread", false, "Only items unread since resurfacing")
	inboxListCmd.Flags().Bool("today", false, "Only items proposed today (org timezone)")
	inboxListCmd.Flags().Int("limit", 0, "Max items to return")

	inboxDismissCmd.Flags().String("reason", "", "Why this condition class is noise")

	inboxTagCmd.Flags().String("title", "", "Issue title (defaults from the signal)")
	inboxAssignCmd.Flags().String("to", "", "Assignee name")
	inboxAssignCmd.Flags().String("title", "", "Issue title (defaults from the signal)")
	inboxCreateCmd.Flags().String("title", "", "Issue title (defaults from the signal)")

	inboxProposeCmd.Flags().String("type", "", "Item type (issue, flagged_signal, orphan, ambiguous)")
	inboxProposeCmd.Flags().String("severity", "", "Severity (defaults to medium)")
	inboxProposeCmd.Flags().String("issue", "", "Underlying issue id (issue items)")
	inboxProposeCmd.Flags().String("signal", "", "Underlying signal id (signal-backed items)")
	inboxProposeCmd.Flags().String("client", "", "Client id")
	inboxProposeCmd.Flags().String("brand", "", "Brand id")
	inboxProposeCmd.Flags().String("engagement", "", "Engagement id")
	inboxProposeCmd.Flags().String("source", "", "Signal source")
	inboxProposeCmd.Flags().String("rule", "", "Signal rule")
	inboxProposeCmd.Flags().String("evidence", "", "Evidence envelope JSON")

	inboxCmd.AddCommand(inboxListCmd, inboxShowCmd, inboxReadCmd, inboxSnoozeCmd,
		inboxDismissCmd, inboxTagCmd, inboxAssignCmd, inboxLinkCmd,
		inboxCreateCmd, inboxSelectCmd, inboxProposeCmd)
	rootCmd.AddCommand(inboxCmd)
}
