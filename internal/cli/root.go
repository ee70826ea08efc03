// Package cli wires Cobra subcommands to application dependencies; it is a thin controller with no business logic.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/neoclaw-ai/completions/internal/bootstrap"
	"github.com/neoclaw-ai/completions/internal/config"
	"github.com/neoclaw-ai/completions/internal/logging"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command and registers all subcommands.
func NewRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "completions",
		Short: "Multi-provider LLM completions with tool calling",
		// Let main handle fatal error rendering through structured logs.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// The config and version commands only print and should not
			// trigger bootstrap/first-run onboarding behavior.
			if cmd.Name() == "config" || cmd.Name() == "version" {
				applyLogLevel(verbose, "")
				return nil
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.Configure(cfg.Logging.Format, cmd.ErrOrStderr())
			applyLogLevel(verbose, cfg.Logging.Level)

			configPath := cfg.ConfigPath()
			firstRun := false
			if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
				firstRun = true
			} else if err != nil {
				return fmt.Errorf("stat config file %q: %w", configPath, err)
			}

			if err := bootstrap.Initialize(cfg); err != nil {
				return err
			}

			if firstRun {
				// First-run bootstrap is an onboarding path, not a fatal error.
				// Print guidance and exit cleanly so logs do not report failures.
				if _, err := fmt.Fprintf(
					cmd.ErrOrStderr(),
					"First run setup complete.\nEdit config file: %s\nThen run the command again.\n",
					configPath,
				); err != nil {
					return err
				}
				os.Exit(0)
			}

			return nil
		},
	}

	root.AddCommand(newCompleteCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newModelsCmd())
	root.AddCommand(newRequestsCmd())
	root.AddCommand(newPartCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging (info level)")

	return root
}

// applyLogLevel gives -v precedence over logging.level; without either the
// process logs warnings and above.
func applyLogLevel(verbose bool, configured string) {
	switch {
	case verbose:
		logging.SetLevel(slog.LevelInfo)
	case configured != "":
		logging.SetLevel(logging.ParseLevel(configured))
	default:
		logging.SetLevel(slog.LevelWarn)
	}
}
