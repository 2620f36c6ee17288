// Package ghoutput writes step outputs and exported variables for the Actions runner.
package ghoutput

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// File appends key/value records to a runner command file such as
// GITHUB_OUTPUT or GITHUB_ENV. A File with an empty path discards writes.
type File struct {
	path string
	// delimiter generates heredoc delimiters for multi-line values.
	delimiter func() string
}

// Outputs returns the File backing GITHUB_OUTPUT.
func Outputs(path string) *File {
	return &File{path: strings.TrimSpace(path)}
}

// Env returns the File backing GITHUB_ENV.
func Env(path string) *File {
	return &File{path: strings.TrimSpace(path)}
}

// Enabled reports whether writes reach a file.
func (f *File) Enabled() bool {
	return f != nil && f.path != ""
}

// Write appends values in sorted key order. Single-line values use key=value,
// multi-line values use the heredoc form with a random delimiter.
func (f *File) Write(values map[string]string) error {
	if !f.Enabled() || len(values) == 0 {
		return nil
	}

	out, err := os.OpenFile(f.path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.path, err)
	}
	defer func() { _ = out.Close() }()

	keys := make([]string, 0, len(values))
	for k := range values {
		if strings.TrimSpace(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, key := range keys {
		value := values[key]
		if !strings.ContainsAny(value, "\r\n") {
			fmt.Fprintf(&sb, "%s=%s\n", key, value)
			continue
		}
		delim := f.newDelimiter()
		for strings.Contains(value, delim) {
			delim = f.newDelimiter()
		}
		fmt.Fprintf(&sb, "%s<<%s\n%s\n%s\n", key, delim, strings.TrimRight(value, "\n"), delim)
	}
	if _, err := out.WriteString(sb.String()); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return nil
}

func (f *File) newDelimiter() string {
	if f.delimiter != nil {
		return f.delimiter()
	}
	return "ghadelimiter_" + uuid.NewString()
}
