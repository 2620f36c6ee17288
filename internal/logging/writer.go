package logging

import (
	"bufio"
	"bytes"
	"context"

	"github.com/chainguard-dev/clog"
)

// Writer is an io.Writer that forwards subprocess output to the context logger,
// one record per line.
type Writer struct {
	ctx    context.Context
	source string
}

// NewWriter constructs a Writer bound to the logger carried by ctx. Source is
// attached to every record (for example "git").
func NewWriter(ctx context.Context, source string) *Writer {
	return &Writer{ctx: ctx, source: source}
}

// Write logs every non-empty line of p at debug level.
func (w *Writer) Write(p []byte) (int, error) {
	log := clog.FromContext(w.ctx)
	scanner := bufio.NewScanner(bytes.NewReader(p))
	for scanner.Scan() {
		line := bytes.TrimRight(scanner.Bytes(), "\r")
		if len(line) == 0 {
			continue
		}
		log.DebugContext(w.ctx, "command output", "source", w.source, "line", string(line))
	}
	return len(p), nil
}
