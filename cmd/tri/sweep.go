package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsline/triage/internal/sweep"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the timer sweeps",
}

func runSnoozeSweep(result map[string]int) {
	sw := sweep.New(store, issuesMgr)
	items, issues, err := sw.ProcessSnoozeExpiry(rootCtx)
	if err != nil {
		fatal("snooze sweep: %v", err)
	}
	result["items_resurfaced"] = items
	result["issues_resurfaced"] = issues
}

func runRegressionSweep(result map[string]int) {
	sw := sweep.New(store, issuesMgr)
	closed, regressed, err := sw.ProcessRegressionWatch(rootCtx)
	if err != nil {
		fatal("regression sweep: %v", err)
	}
	result["issues_closed"] = closed
	result["issues_regressed"] = regressed
}

func reportSweep(result map[string]int) {
	if jsonOutput {
		printJSON(result)
		return
	}
	if _, ok := result["items_resurfaced"]; ok {
		fmt.Printf("Resurfaced %d item(s), %d issue(s)\n",
			result["items_resurfaced"], result["issues_resurfaced"])
	}
	if _, ok := result["issues_closed"]; ok {
		fmt.Printf("Closed %d issue(s), regressed %d\n",
			result["issues_closed"], result["issues_regressed"])
	}
}

var sweepSnoozeCmd = &cobra.Command{
	Use:   "snooze",
	Short: "Resurface expired snoozes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		result := map[string]int{}
		runSnoozeSweep(result)
		reportSweep(result)
	},
}

var sweepRegressionCmd = &cobra.Command{
	Use:   "regression",
	Short: "Settle expired regression watches",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		result := map[string]int{}
		runRegressionSweep(result)
		reportSweep(result)
	},
}

var sweepAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Run every sweep",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		result := map[string]int{}
		runSnoozeSweep(result)
		runRegressionSweep(result)
		reportSweep(result)
	},
}

func init() {
	sweepCmd.AddCommand(sweepSnoozeCmd, sweepRegressionCmd, sweepAllCmd)
	rootCmd.AddCommand(sweepCmd)
}
