package tools

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/shlex"
)

var (
	enabledAlias  = regexp.MustCompile(`--(?:allowedTools|allowed-tools|enabledTools)\b`)
	disabledAlias = regexp.MustCompile(`--(?:disallowedTools|disallowed-tools)\b`)
	mcpConfigFlag = regexp.MustCompile(`--mcp-config\s+(?:"[^"]*"|'[^']*'|[^\s]+)`)
	allowedFlag   = regexp.MustCompile(`--(?:allowedTools|allowed-tools|enabled-tools|enabledTools)\s+(?:"([^"]+)"|'([^']+)'|([^\s]+))`)
	enabledValue  = regexp.MustCompile(`--enabled-tools\s+["']?([^"']+)["']?`)
)

// NormalizeArgs rewrites tool flag aliases to the names the droid CLI
// accepts and strips inline --mcp-config flags, which it rejects.
func NormalizeArgs(raw string) string {
	if raw == "" {
		return ""
	}
	out := enabledAlias.ReplaceAllString(raw, "--enabled-tools")
	out = disabledAlias.ReplaceAllString(out, "--disabled-tools")
	out = mcpConfigFlag.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// ParseAllowedTools returns the comma separated tools of the first
// --enabled-tools style flag in args. A missing or malformed value yields
// nil.
func ParseAllowedTools(args string) []string {
	m := allowedFlag.FindStringSubmatch(args)
	if m == nil {
		return nil
	}
	value := m[1]
	if value == "" {
		value = m[2]
	}
	if value == "" {
		value = m[3]
		// A bare value opening a quote means the quote was never closed.
		if strings.HasPrefix(value, `"`) || strings.HasPrefix(value, "'") {
			return nil
		}
	}
	if value == "" || strings.HasPrefix(value, "--") {
		return nil
	}
	return splitList(value)
}

// DeprecatedTools returns enabled tools still using the retired mcp__ prefix.
func DeprecatedTools(args string) []string {
	m := enabledValue.FindStringSubmatch(args)
	if m == nil {
		return nil
	}
	var old []string
	for _, t := range splitList(m[1]) {
		if strings.HasPrefix(t, "mcp__") {
			old = append(old, t)
		}
	}
	return old
}

// Flags are the overrides placed between the tool list and the user args.
type Flags struct {
	// BuiltInOnly drops MCP tools from --enabled-tools; the servers still
	// receive them through the launch manifest.
	BuiltInOnly     bool
	Model           string
	ReasoningEffort string
}

// DroidArgs renders the droid_args output.
func DroidArgs(allowed []string, flags Flags, userArgs string) string {
	list := allowed
	if flags.BuiltInOnly {
		list = nil
		for _, t := range allowed {
			if !IsMCPTool(t) {
				list = append(list, t)
			}
		}
	}

	var parts []string
	if len(list) > 0 {
		parts = append(parts, fmt.Sprintf("--enabled-tools %q", strings.Join(list, ",")))
	}
	if m := strings.TrimSpace(flags.Model); m != "" {
		parts = append(parts, fmt.Sprintf("--model %q", m))
	}
	if e := strings.TrimSpace(flags.ReasoningEffort); e != "" {
		parts = append(parts, fmt.Sprintf("--reasoning-effort %q", e))
	}
	if userArgs != "" {
		parts = append(parts, userArgs)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

var execBase = []string{"exec", "--output-format", "stream-json", "--skip-permissions-unsafe"}

// ExecArgs builds the argv of the droid exec invocation for promptPath.
// droidArgs is split with shell quoting rules.
func ExecArgs(promptPath, reasoningEffort, droidArgs string) ([]string, error) {
	args := append([]string(nil), execBase...)
	if e := strings.TrimSpace(reasoningEffort); e != "" {
		args = append(args, "--reasoning-effort", e)
	}
	if strings.TrimSpace(droidArgs) != "" {
		custom, err := shlex.Split(droidArgs)
		if err != nil {
			return nil, fmt.Errorf("parse droid args: %w", err)
		}
		args = append(args, custom...)
	}
	return append(args, "-f", promptPath), nil
}

func splitList(value string) []string {
	var out []string
	for _, t := range strings.Split(value, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
