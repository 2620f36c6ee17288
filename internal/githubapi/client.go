// Package githubapi wraps the GitHub REST and GraphQL APIs used while preparing a run.
package githubapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

const (
	defaultAPIURL = "https://api.github.com"
	pageSize      = 100
)

// ErrEntityNotFound is returned when the pull request or issue no longer exists.
var ErrEntityNotFound = errors.New("entity not found")

// Options configure a Client.
type Options struct {
	Token string
	// APIURL is the REST endpoint; anything other than the public API is
	// treated as a GitHub Enterprise Server host.
	APIURL string
	// HTTPClient overrides the authenticated transport.
	HTTPClient *http.Client
	Retry      RetryPolicy
}

// Client talks to one GitHub host.
type Client struct {
	rest  *github.Client
	gql   *githubv4.Client
	retry RetryPolicy
	// plain is the transport without the run credential, for checks that
	// authenticate with a different token.
	plain *http.Client
}

// NewClient builds REST and GraphQL clients sharing one authenticated transport.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	plain := opts.HTTPClient
	if plain == nil {
		plain = http.DefaultClient
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = plain
		if tok := strings.TrimSpace(opts.Token); tok != "" {
			httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok}))
		}
	}

	rest := github.NewClient(httpClient)
	gql := githubv4.NewClient(httpClient)

	apiURL := strings.TrimRight(strings.TrimSpace(opts.APIURL), "/")
	if apiURL != "" && apiURL != defaultAPIURL {
		var err error
		rest, err = rest.WithEnterpriseURLs(apiURL, apiURL)
		if err != nil {
			return nil, fmt.Errorf("configure enterprise endpoint %q: %w", apiURL, err)
		}
		gql = githubv4.NewEnterpriseClient(graphQLURL(rest), httpClient)
	}

	policy := opts.Retry
	if policy.Attempts == 0 {
		policy = DefaultRetryPolicy()
	}
	return &Client{rest: rest, gql: gql, retry: policy, plain: plain}, nil
}

// graphQLURL derives the GraphQL endpoint from an enterprise REST base such
// as https://host/api/v3/.
func graphQLURL(rest *github.Client) string {
	u := *rest.BaseURL
	u.Path = strings.TrimSuffix(u.Path, "v3/") + "graphql"
	return u.String()
}

// BranchData is the branch metadata of a pull request.
type BranchData struct {
	BaseRefName string `json:"baseRefName"`
	HeadRefName string `json:"headRefName"`
	HeadRefOid  string `json:"headRefOid"`
}

// PRBranchData resolves the base and head refs of a pull request with a single query.
func (c *Client) PRBranchData(ctx context.Context, owner, repo string, number int) (BranchData, error) {
	var query struct {
		Repository struct {
			PullRequest struct {
				BaseRefName string
				HeadRefName string
				HeadRefOid  string
			} `graphql:"pullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}
	variables := map[string]any{
		"owner":  githubv4.String(owner),
		"repo":   githubv4.String(repo),
		"number": githubv4.Int(number),
	}

	err := c.withRetry(ctx, "pull request branch data", func() error {
		return c.gql.Query(ctx, &query, variables)
	})
	if err != nil {
		if strings.Contains(err.Error(), "Could not resolve to a PullRequest") {
			return BranchData{}, fmt.Errorf("pull request #%d: %w", number, ErrEntityNotFound)
		}
		return BranchData{}, fmt.Errorf("fetch branch data for pull request #%d: %w", number, err)
	}

	pr := query.Repository.PullRequest
	if pr.BaseRefName == "" && pr.HeadRefOid == "" {
		return BranchData{}, fmt.Errorf("pull request #%d: %w", number, ErrEntityNotFound)
	}
	clog.FromContext(ctx).DebugContext(ctx, "resolved pull request branches",
		"number", number, "base", pr.BaseRefName, "head", pr.HeadRefName, "sha", pr.HeadRefOid)
	return BranchData{BaseRefName: pr.BaseRefName, HeadRefName: pr.HeadRefName, HeadRefOid: pr.HeadRefOid}, nil
}

// ListIssueComments returns every issue-level comment on an issue or pull request.
func (c *Client) ListIssueComments(ctx context.Context, owner, repo string, number int) ([]*github.IssueComment, error) {
	if number <= 0 {
		return nil, fmt.Errorf("issue number must be positive")
	}
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: pageSize}}
	var out []*github.IssueComment
	for {
		var (
			page []*github.IssueComment
			resp *github.Response
		)
		err := c.withRetry(ctx, "list issue comments", func() error {
			var err error
			page, resp, err = c.rest.Issues.ListComments(ctx, owner, repo, number, opts)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list issue comments for #%d: %w", number, err)
		}
		out = append(out, page...)
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// ListReviewComments returns every inline review comment on a pull request.
func (c *Client) ListReviewComments(ctx context.Context, owner, repo string, number int) ([]*github.PullRequestComment, error) {
	if number <= 0 {
		return nil, fmt.Errorf("pr number must be positive")
	}
	opts := &github.PullRequestListCommentsOptions{ListOptions: github.ListOptions{PerPage: pageSize}}
	var out []*github.PullRequestComment
	for {
		var (
			page []*github.PullRequestComment
			resp *github.Response
		)
		err := c.withRetry(ctx, "list review comments", func() error {
			var err error
			page, resp, err = c.rest.PullRequests.ListComments(ctx, owner, repo, number, opts)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list review comments for #%d: %w", number, err)
		}
		out = append(out, page...)
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// CreateComment posts an issue-level comment and returns its id. Writes are
// not retried.
func (c *Client) CreateComment(ctx context.Context, owner, repo string, number int, body string) (int64, error) {
	comment, _, err := c.rest.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{Body: github.Ptr(body)})
	if err != nil {
		return 0, fmt.Errorf("create comment on #%d: %w", number, err)
	}
	return comment.GetID(), nil
}

// GetUser looks up an account.
func (c *Client) GetUser(ctx context.Context, login string) (*github.User, error) {
	var user *github.User
	err := c.withRetry(ctx, "get user", func() error {
		var err error
		user, _, err = c.rest.Users.Get(ctx, login)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", login, err)
	}
	return user, nil
}

// CanReadActions checks whether token may list workflow runs (actions: read).
// It is a single read of one run and is never retried.
func (c *Client) CanReadActions(ctx context.Context, token, owner, repo string) bool {
	rest := github.NewClient(c.plain).WithAuthToken(token)
	base := *c.rest.BaseURL
	rest.BaseURL = &base
	_, _, err := rest.Actions.ListRepositoryWorkflowRuns(ctx, owner, repo, &github.ListWorkflowRunsOptions{
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		clog.FromContext(ctx).DebugContext(ctx, "actions permission check failed", "error", err)
		return false
	}
	return true
}
