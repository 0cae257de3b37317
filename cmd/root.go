// Package cmd defines and implements the CLI commands for the progressd
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progressd",
		Short: "A progress tracking service for long-running nested tasks.",
		Long: `progressd tracks hierarchical task progress: producers report nested
steps, the service folds them into a single percentage and a per-step
duration ledger, and finished tasks flow to the configured sinks
(log, metrics, Postgres, report archive, Pub/Sub).`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default searches ., /etc/progressd, $HOME/.progressd)",
	)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDemoCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "command failed: %v\n", err)
		os.Exit(1)
	}
}
