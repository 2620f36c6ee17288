// Package tools composes the tool allow-list and MCP server manifest handed
// to a droid run.
package tools

import (
	"fmt"
	"slices"
	"strings"
)

// Profile selects the base tool set of a run.
type Profile string

const (
	ProfileReview         Profile = "review"
	ProfileSecurityReview Profile = "security-review"
	ProfileSecurityScan   Profile = "security-scan"
	ProfileFill           Profile = "fill"
	ProfileValidator      Profile = "review-validator"
	// ProfileReviewCandidates only writes a candidates file.
	ProfileReviewCandidates Profile = "review-candidates"
	ProfileCombine          Profile = "combine"
)

// Tool name prefixes of the bundled MCP servers.
const (
	CommentServer       = "github_comment"
	InlineCommentServer = "github_inline_comment"
	PRServer            = "github_pr"
	CIServer            = "github_ci"
	GitHubServer        = "github"

	mcpSeparator = "___"
)

var coreTools = []string{"Read", "Grep", "Glob", "LS", "Execute"}

var reviewTools = []string{
	"github_pr___list_review_comments",
	"github_pr___submit_review",
	"github_pr___delete_comment",
	"github_pr___minimize_comment",
	"github_pr___reply_to_comment",
	"github_pr___resolve_review_thread",
}

// BaseTools returns the tools every run of profile is granted.
func BaseTools(p Profile) ([]string, error) {
	base := append([]string(nil), coreTools...)
	switch p {
	case ProfileReview, ProfileSecurityReview:
		base = append(base, "github_comment___update_droid_comment", "github_inline_comment___create_inline_comment")
		return append(base, reviewTools...), nil
	case ProfileSecurityScan:
		return append(base, "github_comment___update_droid_comment"), nil
	case ProfileFill:
		return append(base, "github_comment___update_droid_comment", "github_pr___update_pr_description"), nil
	case ProfileReviewCandidates:
		return append(base, "Create"), nil
	case ProfileCombine:
		// No submit_review: the tracking comment already carries the summary.
		return append(base, "github_comment___update_droid_comment", "github_inline_comment___create_inline_comment"), nil
	case ProfileValidator:
		base = append(base, "ApplyPatch", "Create", "Edit",
			"github_comment___update_droid_comment", "github_inline_comment___create_inline_comment")
		return append(base, "github_pr___submit_review"), nil
	default:
		return nil, fmt.Errorf("unknown tool profile %q", p)
	}
}

// IsMCPTool reports whether name is served by an MCP server.
func IsMCPTool(name string) bool {
	return strings.Contains(name, mcpSeparator)
}

// Composition is the outcome of Compose.
type Composition struct {
	// AllowedTools is the ordered, duplicate free allow-list.
	AllowedTools []string
	// UserArgs are the normalized user supplied droid args.
	UserArgs string
}

// Compose merges the base tools of profile with the GitHub MCP tools the
// user enabled in rawArgs. Other user tools stay in UserArgs only.
func Compose(p Profile, rawArgs string) (Composition, error) {
	base, err := BaseTools(p)
	if err != nil {
		return Composition{}, err
	}
	userArgs := NormalizeArgs(rawArgs)

	var extra []string
	for _, t := range ParseAllowedTools(userArgs) {
		if strings.HasPrefix(t, "github_") && IsMCPTool(t) {
			extra = append(extra, t)
		}
	}
	return Composition{
		AllowedTools: dedupe(append(base, extra...)),
		UserArgs:     userArgs,
	}, nil
}

// Disallowed returns the web tools not present in allowed.
func Disallowed(allowed []string) []string {
	var out []string
	for _, t := range []string{"WebSearch", "FetchUrl"} {
		if !slices.Contains(allowed, t) {
			out = append(out, t)
		}
	}
	return out
}

func hasServerTools(allowed []string, server string) bool {
	prefix := server + mcpSeparator
	for _, t := range allowed {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
