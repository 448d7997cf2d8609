package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsline/triage/internal/timeparsing"
	"github.com/opsline/triage/internal/types"
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Track and transition issues",
}

var issueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issues",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		filter := types.IssueFilter{}
		if s, _ := cmd.Flags().GetString("state"); s != "" {
			st := types.IssueState(s)
			if !st.IsValid() {
				fatal("invalid state: %s", s)
			}
			filter.State = &st
		}
		if s, _ := cmd.Flags().GetString("type"); s != "" {
			t := types.IssueType(s)
			if !t.IsValid() {
				fatal("invalid type: %s", s)
			}
			filter.Type = &t
		}
		if s, _ := cmd.Flags().GetString("severity"); s != "" {
			sev := types.Severity(s)
			if !sev.IsValid() {
				fatal("invalid severity: %s", s)
			}
			filter.Severity = &sev
		}
		filter.ClientID, _ = cmd.Flags().GetString("client")
		filter.EngagementID, _ = cmd.Flags().GetString("engagement")
		filter.AssignedTo, _ = cmd.Flags().GetString("assignee")
		if on, _ := cmd.Flags().GetBool("suppressed"); on {
			filter.Suppressed = &on
		}
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		issues, err := store.ListIssues(rootCtx, filter)
		if err != nil {
			fatal("listing issues: %v", err)
		}
		if jsonOutput {
			printJSON(issues)
			return
		}
		if len(issues) == 0 {
			fmt.Println("No issues.")
			return
		}
		for _, is := range issues {
			printIssueRow(is)
		}
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one issue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		is, err := store.GetIssue(rootCtx, args[0])
		if err != nil {
			fatal("%v", err)
		}
		if jsonOutput {
			printJSON(is)
			return
		}
		printIssueDetail(is)
	},
}

var issueAckCmd = &cobra.Command{
	Use:     "ack <id...>",
	Aliases: []string{"acknowledge"},
	Short:   "Acknowledge surfaced issues",
	Args:    cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		actx := beginAttribution()
		for _, id := range args {
			if err := issuesMgr.Acknowledge(rootCtx, actx, id); err != nil {
				fatalAction(err)
			}
		}
		if jsonOutput {
			printJSON(map[string]interface{}{"acknowledged": args})
			return
		}
		fmt.Printf("Acknowledged %d issue(s)\n", len(args))
	},
}

var issueAssignCmd = &cobra.Command{
	Use:   "assign <id>",
	Short: "Assign an issue, moving it to addressing",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		assignee, _ := cmd.Flags().GetString("to")
		if assignee == "" {
			fatal("--to is required")
		}
		if err := issuesMgr.Assign(rootCtx, beginAttribution(), args[0], assignee); err != nil {
			fatalAction(err)
		}
		if jsonOutput {
			printJSON(map[string]string{"id": args[0], "assignee": assignee})
			return
		}
		fmt.Printf("Assigned %s to %s\n", args[0], assignee)
	},
}

var issueSnoozeCmd = &cobra.Command{
	Use:   "snooze <id> <until>",
	Short: "Snooze an issue (2d, 1w, tomorrow, 2026-09-01)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		d, err := timeparsing.ParseDuration(args[1], time.Now().UTC())
		if err != nil {
			fatal("parsing snooze time %q: %v", args[1], err)
		}
		if err := issuesMgr.Snooze(rootCtx, beginAttribution(), args[0], d); err != nil {
			fatalAction(err)
		}
		reportAction("Snoozed", args[0])
	},
}

var issueUnsnoozeCmd = &cobra.Command{
	Use:   "unsnooze <id>",
	Short: "Resurface a snoozed issue immediately",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := issuesMgr.Unsnooze(rootCtx, beginAttribution(), args[0]); err != nil {
			fatalAction(err)
		}
		reportAction("Resurfaced", args[0])
	},
}

var issueSubmitCmd = &cobra.Command{
	Use:   "submit <id>",
	Short: "Submit an issue for resolution review",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := issuesMgr.Submit(rootCtx, beginAttribution(), args[0]); err != nil {
			fatalAction(err)
		}
		reportAction("Submitted", args[0])
	},
}

var issueResolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Resolve an issue, starting its regression watch",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := issuesMgr.Resolve(rootCtx, beginAttribution(), args[0]); err != nil {
			fatalAction(err)
		}
		reportAction("Resolved", args[0])
	},
}

var issueEscalateCmd = &cobra.Command{
	Use:   "escalate <id>",
	Short: "Raise an issue's severity one notch",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := issuesMgr.Escalate(rootCtx, beginAttribution(), args[0]); err != nil {
			fatalAction(err)
		}
		is, err := store.GetIssue(rootCtx, args[0])
		if err != nil {
			fatal("%v", err)
		}
		if jsonOutput {
			printJSON(is)
			return
		}
		fmt.Printf("Escalated %s to %s\n", args[0], is.Severity)
	},
}

var issueCloseCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Close an issue whose regression watch is clear",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := issuesMgr.Close(rootCtx, beginAttribution(), args[0]); err != nil {
			fatalAction(err)
		}
		reportAction("Closed", args[0])
	},
}

var issueSurfaceCmd = &cobra.Command{
	Use:   "surface <id>",
	Short: "Surface a detected issue for operator attention",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := issuesMgr.Surface(rootCtx, beginAttribution(), args[0]); err != nil {
			fatalAction(err)
		}
		reportAction("Surfaced", args[0])
	},
}

func init() {
	issueListCmd.Flags().String("state", "", "Filter by state")
	issueListCmd.Flags().String("type", "", "Filter by type (financial, schedule_delivery, communication, risk)")
	issueListCmd.Flags().String("severity", "", "Filter by severity")
	issueListCmd.Flags().String("client", "", "Filter by client id")
	issueListCmd.Flags().String("engagement", "", "Filter by engagement id")
	issueListCmd.Flags().String("assignee", "", "Filter by assignee")
	issueListCmd.Flags().Bool("suppressed", false, "Only suppressed issues")
	issueListCmd.Flags().Int("limit", 0, "Max issues to return")

	issueAssignCmd.Flags().String("to", "", "Assignee name")

	issueCmd.AddCommand(issueListCmd, issueShowCmd, issueAckCmd, issueAssignCmd,
		issueSnoozeCmd, issueUnsnoozeCmd, issueSubmitCmd, issueResolveCmd,
		issueEscalateCmd, issueCloseCmd, issueSurfaceCmd)
	rootCmd.AddCommand(issueCmd)
}
