// Command tri is the operator CLI for the triage lifecycle core.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsline/triage/internal/attribution"
	"github.com/opsline/triage/internal/config"
	"github.com/opsline/triage/internal/debug"
	"github.com/opsline/triage/internal/lifecycle"
	"github.com/opsline/triage/internal/storage"
	"github.com/opsline/triage/internal/storage/sqlite"
	"github.com/opsline/triage/internal/telemetry"
	"github.com/opsline/triage/internal/ui"
)

// Version is set at link time via -ldflags "-X main.Version=v1.2.3".
var Version = "dev"

var (
	dbPath     string
	actorFlag  string
	requestID  string
	jsonOutput bool
	verbose    bool
	quiet      bool

	store     storage.Storage
	inboxMgr  *lifecycle.Inbox
	issuesMgr *lifecycle.Issues

	// Signal-aware context for graceful cancellation.
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

// noStoreCommands run without an open database.
var noStoreCommands = map[string]bool{
	"init":       true,
	"version":    true,
	"help":       true,
	"completion": true,
	"config":     true,
}

var rootCmd = &cobra.Command{
	Use:           "tri",
	Short:         "Triage inbox and issue lifecycle tracker",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		debug.SetVerbose(verbose)
		debug.SetQuiet(quiet)
		ui.InitColor()

		if err := config.Initialize(); err != nil {
			return err
		}
		if err := telemetry.Init(rootCtx, "tri", Version); err != nil {
			debug.Logf("telemetry init failed: %v", err)
		}

		if noStoreCommands[commandName(cmd)] {
			return nil
		}
		return openStore()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeStore()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(shutdownCtx)
	},
}

// commandName walks up to the subcommand directly under root, so
// "tri inbox list" checks "inbox" against noStoreCommands.
func commandName(cmd *cobra.Command) string {
	for cmd.HasParent() && cmd.Parent().HasParent() {
		cmd = cmd.Parent()
	}
	return cmd.Name()
}

func openStore() error {
	path := dbPath
	if path == "" {
		path = config.DBPath()
	}
	s, err := sqlite.New(rootCtx, path)
	if err != nil {
		return fmt.Errorf("opening database %s: %w (run 'tri init' first?)", path, err)
	}
	store = telemetry.WrapStorage(s)
	inboxMgr = lifecycle.NewInbox(store)
	issuesMgr = lifecycle.NewIssues(store).WithWatchWindow(config.WatchWindow())
	return nil
}

func closeStore() {
	if store != nil {
		if err := store.Close(); err != nil {
			debug.Logf("closing store: %v", err)
		}
		store = nil
	}
}

// currentActor resolves write attribution: --actor flag, then config and env.
func currentActor() string {
	if actorFlag != "" {
		return actorFlag
	}
	if a := config.DefaultActor(); a != "" {
		return a
	}
	return "unknown"
}

// beginAttribution opens the attribution context for this command's writes.
// All writes in one invocation share a request id.
func beginAttribution() *attribution.Context {
	return attribution.Begin(currentActor(), attribution.SourceCLI,
		attribution.WithRequestID(requestID))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the tri version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tri %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: discovered .triage/triage.db)")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "Actor for write attribution")
	rootCmd.PersistentFlags().StringVar(&requestID, "request-id", "", "Correlation id for this command's writes")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer rootCancel()
	attribution.BuildTag = Version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		closeStore()
		os.Exit(1)
	}
}
