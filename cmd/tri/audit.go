package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsline/triage/internal/idgen"
	"github.com/opsline/triage/internal/types"
	"github.com/opsline/triage/internal/ui"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit trail",
}

// tableForID maps a record id to its audit table by prefix.
func tableForID(id string) (string, error) {
	switch {
	case idgen.HasPrefix(id, idgen.InboxPrefix):
		return "inbox_items", nil
	case idgen.HasPrefix(id, idgen.IssuePrefix):
		return "issues", nil
	default:
		return "", fmt.Errorf("cannot infer record kind from id %q", id)
	}
}

var auditHistoryCmd = &cobra.Command{
	Use:   "history [table] <row-id>",
	Short: "Show the write history of one record, newest first",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		var table, rowID string
		if len(args) == 2 {
			table, rowID = args[0], args[1]
		} else {
			rowID = args[0]
			var err error
			if table, err = tableForID(rowID); err != nil {
				fatal("%v", err)
			}
		}
		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := store.AuditHistory(rootCtx, table, rowID, limit)
		if err != nil {
			fatal("%v", err)
		}
		if jsonOutput {
			printJSON(entries)
			return
		}
		if len(entries) == 0 {
			fmt.Println("No audit entries.")
			return
		}
		for _, e := range entries {
			printAuditEntry(e)
		}
	},
}

var auditRequestCmd = &cobra.Command{
	Use:   "request <request-id>",
	Short: "Show every write made under one request id",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		entries, err := store.AuditByRequest(rootCtx, args[0])
		if err != nil {
			fatal("%v", err)
		}
		if jsonOutput {
			printJSON(entries)
			return
		}
		if len(entries) == 0 {
			fmt.Println("No audit entries.")
			return
		}
		for _, e := range entries {
			printAuditEntry(e)
		}
	},
}

var auditMysteryCmd = &cobra.Command{
	Use:   "mystery",
	Short: "Surface bulk write batches for review",
	Long: "Groups recent writes by request id and reports batches touching at\n" +
		"least --min-rows rows, the usual signature of a runaway script or an\n" +
		"unexpected bulk edit.",
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		window, _ := cmd.Flags().GetDuration("window")
		minRows, _ := cmd.Flags().GetInt("min-rows")
		writes, err := store.MysteryWrites(rootCtx, window, minRows)
		if err != nil {
			fatal("%v", err)
		}
		if jsonOutput {
			printJSON(writes)
			return
		}
		if len(writes) == 0 {
			fmt.Println("No bulk write batches found.")
			return
		}
		for _, w := range writes {
			fmt.Printf("%-38s  %-12s  %-8s  %4d rows  %s .. %s\n",
				w.RequestID, w.Actor, w.Source, w.RowCount,
				formatTime(w.FirstAt), formatTime(w.LastAt))
		}
	},
}

func printAuditEntry(e *types.AuditEntry) {
	fmt.Printf("%s  %-6s  %-14s  %-12s  %s  %s\n",
		formatTime(e.At), e.Op, e.RowID, e.Actor, e.Source,
		ui.RenderMuted(e.RequestID))
	if verbose {
		if e.BeforeJSON != "" {
			fmt.Printf("  before: %s\n", ui.RenderMuted(e.BeforeJSON))
		}
		if e.AfterJSON != "" {
			fmt.Printf("  after:  %s\n", ui.RenderMuted(e.AfterJSON))
		}
	}
}

func init() {
	auditHistoryCmd.Flags().Int("limit", 0, "Max entries to return")
	auditMysteryCmd.Flags().Duration("window", 24*time.Hour, "How far back to look")
	auditMysteryCmd.Flags().Int("min-rows", 10, "Minimum rows touched to report a batch")
	auditCmd.AddCommand(auditHistoryCmd, auditRequestCmd, auditMysteryCmd)
	rootCmd.AddCommand(auditCmd)
}
