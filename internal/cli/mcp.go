package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"github.com/droid-action/droidprep/internal/mcpconfig"
	"github.com/droid-action/droidprep/internal/prompt"
	"github.com/droid-action/droidprep/internal/tools"
)

// newRegisterMCPCommand creates the "register-mcp" subcommand that installs
// the servers of MCP_TOOLS into the droid CLI.
func newRegisterMCPCommand(opts *Options) *cobra.Command {
	var (
		droidPath string
		required  bool
	)
	cmd := &cobra.Command{
		Use:   "register-mcp",
		Short: "Register the MCP servers of MCP_TOOLS with the droid CLI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			names, err := mcpconfig.Register(ctx, cfg.Inputs.MCPTools, mcpconfig.ExecRunner{Path: droidPath}, required)
			if err != nil {
				return err
			}
			if len(names) == 0 {
				clog.FromContext(ctx).InfoContext(ctx, "no mcp servers to register")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&droidPath, "droid", "", "Path to the droid binary (defaults to droid on PATH)")
	cmd.Flags().BoolVar(&required, "required", false, "Fail when the manifest is malformed")
	return cmd
}

// newExecArgsCommand creates the "exec-args" subcommand that prints the argv
// of the droid exec invocation as a JSON array.
func newExecArgsCommand(opts *Options) *cobra.Command {
	var (
		promptFile string
		droidArgs  string
	)
	cmd := &cobra.Command{
		Use:   "exec-args",
		Short: "Print the droid exec arguments for the prepared prompt",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if strings.TrimSpace(promptFile) == "" {
				promptFile = filepath.Join(cfg.Runner.PromptDir(), prompt.FileName)
			}
			if !cmd.Flags().Changed("droid-args") {
				droidArgs = cfg.Inputs.DroidArgs
			}
			args, err := tools.ExecArgs(promptFile, cfg.Inputs.ReasoningEffort, droidArgs)
			if err != nil {
				return err
			}
			out, err := json.Marshal(args)
			if err != nil {
				return fmt.Errorf("encode exec args: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	cmd.Flags().StringVar(&promptFile, "prompt-file", "", "Prompt file (defaults to the prepared prompt)")
	cmd.Flags().StringVar(&droidArgs, "droid-args", "", "Prepared droid arguments (defaults to DROID_ARGS)")
	return cmd
}
