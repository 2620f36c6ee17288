// Package cli defines the command-line interface for droidprep.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/droid-action/droidprep/internal/config"
	"github.com/droid-action/droidprep/internal/env"
	"github.com/droid-action/droidprep/internal/logging"
)

// Options stores global CLI options shared between commands.
type Options struct {
	InputsFile string
	EnvFiles   []string
	LogLevel   string
	// Environ replaces the process environment when non-nil.
	Environ env.Vars
	// Stdout receives command output meant for other programs.
	Stdout io.Writer
}

// Execute builds the root command, runs it with the provided args and logger, and returns any error.
func Execute(args []string, logger *slog.Logger) error {
	return ExecuteContext(context.Background(), args, logger, &Options{})
}

// ExecuteContext is Execute with an explicit context and options.
func ExecuteContext(ctx context.Context, args []string, logger *slog.Logger, opts *Options) error {
	if logger == nil {
		logger = logging.NewLogger(os.Stderr, logging.LevelInfo)
	}
	if opts == nil {
		opts = &Options{}
	}
	rootCmd := newRootCommand(opts, logger)
	rootCmd.SetArgs(args)
	if opts.Stdout != nil {
		rootCmd.SetOut(opts.Stdout)
	}
	return rootCmd.ExecuteContext(ctx)
}

// newRootCommand constructs the root cobra.Command with global flags and subcommands.
func newRootCommand(opts *Options, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "droidprep",
		Short:         "droidprep prepares droid agent runs for GitHub Actions",
		Long:          "droidprep reads the webhook event of a workflow run, decides which droid mode to run, and prepares branches, diffs, tool permissions and the prompt for it.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if opts.LogLevel != "" {
				logger = logging.NewLogger(os.Stderr, logging.ParseLevel(opts.LogLevel))
			}
			cmd.SetContext(logging.WithLogger(ctx, logger))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.InputsFile, "inputs-file", "", "YAML or TOML file with action inputs")
	cmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env-file", nil, "Dotenv files merged under the process environment")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to DROIDPREP_LOG_LEVEL")

	cmd.AddCommand(
		newPrepareCommand(opts),
		newPrepareValidatorCommand(opts),
		newGenerateReviewPromptCommand(opts),
		newGenerateCombinePromptCommand(opts),
		newRegisterMCPCommand(opts),
		newExecArgsCommand(opts),
	)

	return cmd
}

// loadConfig resolves the run configuration from the global options. When no
// --log-level was given, DROIDPREP_LOG_LEVEL replaces the context logger.
func loadConfig(cmd *cobra.Command, opts *Options) (context.Context, *config.Config, error) {
	wd, _ := os.Getwd()
	cfg, err := config.Load(config.LoadOptions{
		InputsFile: opts.InputsFile,
		EnvFiles:   opts.EnvFiles,
		BaseDir:    wd,
		Environ:    opts.Environ,
	})
	if err != nil {
		return nil, nil, err
	}
	ctx := cmd.Context()
	if opts.LogLevel == "" && cfg.LogLevel != "" {
		ctx = logging.WithLogger(ctx, logging.NewLogger(os.Stderr, logging.ParseLevel(cfg.LogLevel)))
	}
	return ctx, cfg, nil
}
