package materialize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/droid-action/droidprep/internal/logging"
)

// GitRunner runs git subcommands in the working tree. Stdout is written to
// out when non-nil.
type GitRunner interface {
	Run(ctx context.Context, out io.Writer, args ...string) error
}

// ExecGit runs the git binary found on PATH.
type ExecGit struct {
	// Dir is the working tree; empty means the process working directory.
	Dir string
	// Env is appended to the process environment.
	Env []string
}

// Run executes git with args. Stderr is forwarded to the context logger.
func (g ExecGit) Run(ctx context.Context, out io.Writer, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.Dir
	if len(g.Env) > 0 {
		cmd.Env = append(cmd.Environ(), g.Env...)
	}
	if out != nil {
		cmd.Stdout = out
	} else {
		cmd.Stdout = logging.NewWriter(ctx, "git")
	}
	var stderr bytes.Buffer
	cmd.Stderr = io.MultiWriter(&stderr, logging.NewWriter(ctx, "git"))

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, msg)
		}
		return fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return nil
}

// output runs git and returns its trimmed stdout.
func output(ctx context.Context, git GitRunner, args ...string) (string, error) {
	var buf bytes.Buffer
	if err := git.Run(ctx, &buf, args...); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

var errBufferFull = errors.New("buffer limit reached")

// boundedBuffer accepts at most limit bytes and records when more was offered.
type boundedBuffer struct {
	buf      bytes.Buffer
	limit    int
	overflow bool
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if b.overflow {
		return 0, errBufferFull
	}
	if b.buf.Len()+len(p) > b.limit {
		b.overflow = true
		return 0, errBufferFull
	}
	return b.buf.Write(p)
}
