package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsline/triage/internal/ui"
)

var suppressCmd = &cobra.Command{
	Use:   "suppress",
	Short: "Manage suppression rules",
}

var suppressListCmd = &cobra.Command{
	Use:   "list",
	Short: "List suppression rules",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		includeExpired, _ := cmd.Flags().GetBool("all")
		rules, err := store.ListSuppressionRules(rootCtx, includeExpired)
		if err != nil {
			fatal("%v", err)
		}
		if jsonOutput {
			printJSON(rules)
			return
		}
		if len(rules) == 0 {
			fmt.Println("No suppression rules.")
			return
		}
		now := time.Now().UTC()
		for _, r := range rules {
			expiry := "expires " + formatTime(r.ExpiresAt)
			if r.Expired(now) {
				expiry = ui.RenderMuted("expired " + formatTime(r.ExpiresAt))
			}
			fmt.Printf("%-48s  %-15s  %-12s  %s\n", r.SuppressionKey, r.ItemType, r.CreatedBy, expiry)
		}
	},
}

var suppressRmCmd = &cobra.Command{
	Use:   "rm <key>",
	Short: "Remove a suppression rule, letting its class surface again",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := store.DeleteSuppressionRule(rootCtx, beginAttribution(), args[0]); err != nil {
			fatal("%v", err)
		}
		reportAction("Removed", args[0])
	},
}

var suppressGcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete expired suppression rules",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		n, err := store.DeleteExpiredSuppressionRules(rootCtx, beginAttribution(), time.Now().UTC())
		if err != nil {
			fatal("%v", err)
		}
		if jsonOutput {
			printJSON(map[string]int{"deleted": n})
			return
		}
		fmt.Printf("Deleted %d expired rule(s)\n", n)
	},
}

func init() {
	suppressListCmd.Flags().Bool("all", false, "Include expired rules")
	suppressCmd.AddCommand(suppressListCmd, suppressRmCmd, suppressGcCmd)
	rootCmd.AddCommand(suppressCmd)
}
