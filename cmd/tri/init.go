package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opsline/triage/internal/config"
	"github.com/opsline/triage/internal/storage/sqlite"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a triage workspace in the current directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := config.WorkspaceDir
		if _, err := os.Stat(dir); err == nil {
			return fmt.Errorf("%s already exists", dir)
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}

		cfg := &config.Local{
			OrgTimezone:  config.GetString(config.KeyOrgTimezone),
			DefaultActor: currentActor(),
		}
		if err := config.WriteLocal(dir, cfg); err != nil {
			return err
		}

		// Open once so the schema exists before the first real command.
		path := filepath.Join(dir, "triage.db")
		s, err := sqlite.New(rootCtx, path)
		if err != nil {
			return fmt.Errorf("creating database: %w", err)
		}
		if err := s.Close(); err != nil {
			return err
		}

		if jsonOutput {
			printJSON(map[string]string{"workspace": dir, "db": path})
			return nil
		}
		fmt.Printf("Initialized triage workspace in %s\n", dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
