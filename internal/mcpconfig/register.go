// Package mcpconfig registers the MCP launch manifest with the droid CLI
// before the agent run starts.
package mcpconfig

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"

	"github.com/chainguard-dev/clog"

	"github.com/droid-action/droidprep/internal/config"
	"github.com/droid-action/droidprep/internal/logging"
)

// Runner runs droid CLI subcommands.
type Runner interface {
	Run(ctx context.Context, args ...string) error
}

// ExecRunner runs the droid binary at Path, or "droid" from PATH.
type ExecRunner struct {
	Path string
}

// Run executes droid with args, forwarding its output to the context logger.
func (r ExecRunner) Run(ctx context.Context, args ...string) error {
	bin := r.Path
	if bin == "" {
		bin = "droid"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	var out io.Writer = logging.NewWriter(ctx, "droid")
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", bin, strings.Join(args, " "), err)
	}
	return nil
}

// Register adds every server of manifestJSON to the droid CLI, replacing any
// registration with the same name. A blank manifest registers nothing. When
// expected is false a malformed manifest is logged and skipped.
func Register(ctx context.Context, manifestJSON string, runner Runner, expected bool) ([]string, error) {
	log := clog.FromContext(ctx)
	if strings.TrimSpace(manifestJSON) == "" {
		return nil, nil
	}
	manifest, err := config.ParseMCPManifest(manifestJSON)
	if err != nil {
		if !expected {
			log.WarnContext(ctx, "ignoring malformed mcp manifest", "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("mcp server registration failed: %w", err)
	}

	names := manifest.Names()
	if len(names) == 0 {
		return nil, nil
	}
	log.InfoContext(ctx, "registering mcp servers", "count", len(names), "servers", strings.Join(names, ", "))

	for _, name := range names {
		if err := runner.Run(ctx, "mcp", "remove", name); err != nil {
			log.DebugContext(ctx, "mcp server was not registered", "server", name, "error", err)
		}
		if err := runner.Run(ctx, AddArgs(name, manifest.Servers[name])...); err != nil {
			return nil, fmt.Errorf("mcp server registration failed: register %s: %w", name, err)
		}
		log.InfoContext(ctx, "registered mcp server", "server", name)
	}
	return names, nil
}

// AddArgs builds the "mcp add" arguments for one server. The launch command
// is passed as one argument; env entries are sorted by key.
func AddArgs(name string, srv config.MCPServer) []string {
	parts := make([]string, 0, len(srv.Args)+1)
	if srv.Command != "" {
		parts = append(parts, srv.Command)
	}
	for _, a := range srv.Args {
		if a != "" {
			parts = append(parts, a)
		}
	}
	args := []string{"mcp", "add", name, strings.Join(parts, " ")}

	keys := make([]string, 0, len(srv.Env))
	for k := range srv.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--env", k+"="+srv.Env[k])
	}
	return args
}
