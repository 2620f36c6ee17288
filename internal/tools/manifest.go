package tools

import (
	"context"
	"path"
	"strconv"

	"github.com/chainguard-dev/clog"

	"github.com/droid-action/droidprep/internal/config"
)

// GitHubMCPImage pins the github-mcp-server release (v0.17.1).
const GitHubMCPImage = "ghcr.io/github/github-mcp-server:sha-23fa0dd"

// ActionsChecker checks whether a token may read workflow runs.
type ActionsChecker interface {
	CanReadActions(ctx context.Context, token, owner, repo string) bool
}

// ManifestParams carry the run facts the server entries are built from.
type ManifestParams struct {
	Token     string
	Owner     string
	Repo      string
	IsPR      bool
	PRNumber  int
	CommentID int64
	EventName string
	APIURL    string
	ServerURL string
	// ActionPath is the checkout of the action that bundles the servers.
	ActionPath string
	RunnerTemp string
	// WorkflowToken is the default workflow token, used by the CI server.
	WorkflowToken string
	Checker       ActionsChecker
}

// BuildManifest returns the launch entries for the servers serving allowed.
// The comment server is always present; the others only when a tool of
// theirs is allowed and the run has the context they need.
func BuildManifest(ctx context.Context, allowed []string, p ManifestParams) config.MCPManifest {
	log := clog.FromContext(ctx)
	wantGitHub := hasServerTools(allowed, GitHubServer)
	servers := map[string]config.MCPServer{}

	commentEnv := map[string]string{
		"GITHUB_TOKEN":      p.Token,
		"REPO_OWNER":        p.Owner,
		"REPO_NAME":         p.Repo,
		"GITHUB_EVENT_NAME": p.EventName,
		"GITHUB_API_URL":    p.APIURL,
	}
	if p.CommentID != 0 {
		commentEnv["DROID_COMMENT_ID"] = strconv.FormatInt(p.CommentID, 10)
	}
	servers[CommentServer] = p.bunServer("github-comment-server.ts", commentEnv)

	prNumber := ""
	if p.PRNumber > 0 {
		prNumber = strconv.Itoa(p.PRNumber)
	}

	if p.IsPR && (wantGitHub || hasServerTools(allowed, InlineCommentServer)) {
		servers[InlineCommentServer] = p.bunServer("github-inline-comment-server.ts", map[string]string{
			"GITHUB_TOKEN":   p.Token,
			"REPO_OWNER":     p.Owner,
			"REPO_NAME":      p.Repo,
			"PR_NUMBER":      prNumber,
			"GITHUB_API_URL": p.APIURL,
		})
	}

	if p.IsPR && p.WorkflowToken != "" {
		if p.Checker == nil || !p.Checker.CanReadActions(ctx, p.WorkflowToken, p.Owner, p.Repo) {
			log.WarnContext(ctx, "the github_ci MCP server requires 'actions: read' permission on the workflow token")
		}
		temp := p.RunnerTemp
		if temp == "" {
			temp = "/tmp"
		}
		servers[CIServer] = p.bunServer("github-actions-server.ts", map[string]string{
			"GITHUB_TOKEN": p.WorkflowToken,
			"REPO_OWNER":   p.Owner,
			"REPO_NAME":    p.Repo,
			"PR_NUMBER":    prNumber,
			"RUNNER_TEMP":  temp,
		})
	}

	if p.IsPR && hasServerTools(allowed, PRServer) {
		servers[PRServer] = p.bunServer("github-pr-server.ts", map[string]string{
			"GITHUB_TOKEN": p.Token,
			"REPO_OWNER":   p.Owner,
			"REPO_NAME":    p.Repo,
			"PR_NUMBER":    prNumber,
		})
	}

	if wantGitHub {
		servers[GitHubServer] = config.MCPServer{
			Command: "docker",
			Args: []string{
				"run", "-i", "--rm",
				"-e", "GITHUB_PERSONAL_ACCESS_TOKEN",
				"-e", "GITHUB_HOST",
				GitHubMCPImage,
			},
			Env: map[string]string{
				"GITHUB_PERSONAL_ACCESS_TOKEN": p.Token,
				"GITHUB_HOST":                  p.ServerURL,
			},
		}
	}

	log.DebugContext(ctx, "composed mcp manifest", "servers", len(servers))
	return config.MCPManifest{Servers: servers}
}

func (p ManifestParams) bunServer(script string, env map[string]string) config.MCPServer {
	return config.MCPServer{
		Command: "bun",
		Args:    []string{"run", path.Join(p.ActionPath, "src", "mcp", script)},
		Env:     env,
	}
}
