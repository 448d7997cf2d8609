package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsline/triage/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		resolved := map[string]interface{}{
			config.KeyDBPath:        config.DBPath(),
			config.KeyOrgTimezone:   config.GetString(config.KeyOrgTimezone),
			config.KeyDefaultActor:  currentActor(),
			config.KeyWatchDays:     config.GetInt(config.KeyWatchDays),
			config.KeySweepInterval: config.GetString(config.KeySweepInterval),
		}
		if jsonOutput {
			printJSON(resolved)
			return
		}
		for _, key := range []string{
			config.KeyDBPath, config.KeyOrgTimezone, config.KeyDefaultActor,
			config.KeyWatchDays, config.KeySweepInterval,
		} {
			fmt.Printf("%-24s %v\n", key, resolved[key])
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
