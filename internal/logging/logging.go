// Package logging provides helpers for structured, colorized logging across droidprep.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/lmittmann/tint"
)

// Level represents a structured log level used by droidprep.
type Level slog.Level

const (
	// LevelDebug represents the debug logging level.
	LevelDebug Level = Level(slog.LevelDebug)
	// LevelInfo represents the informational logging level.
	LevelInfo Level = Level(slog.LevelInfo)
	// LevelWarn represents the warning logging level.
	LevelWarn Level = Level(slog.LevelWarn)
	// LevelError represents the error logging level.
	LevelError Level = Level(slog.LevelError)
)

// ParseLevel converts a textual log level into a Level value.
func ParseLevel(value string) Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// String returns the lowercase name of the level.
func (l Level) String() string {
	return strings.ToLower(slog.Level(l).String())
}

// NewLogger constructs a slog.Logger configured with a tint handler and level.
func NewLogger(w io.Writer, level Level) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	handler := tint.NewHandler(w, &tint.Options{
		Level: slog.Level(level),
	})

	return slog.New(handler)
}

// WithLogger attaches logger to ctx so that library packages can retrieve it
// through clog.FromContext.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return clog.WithLogger(ctx, clog.NewLogger(logger))
}
