package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/progressd/internal/app"
	"github.com/JakeFAU/progressd/internal/config"
)

// newServeCmd creates and configures the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the progress tracking server",
		Long: `Loads configuration, assembles the registry, delivery pipeline, and
HTTP API, then serves until interrupted. Finished-task records are
delivered to every configured sink before shutdown completes.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	application, err := app.Build(cmd.Context(), &cfg)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	return application.Run(cmd.Context())
}
