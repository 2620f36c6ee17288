package githubapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-github/v75/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), Options{
		APIURL:     srv.URL,
		HTTPClient: srv.Client(),
		Retry:      RetryPolicy{Attempts: 3, Delay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	})
	require.NoError(t, err)
	return c
}

func TestPRBranchData(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/graphql", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		var req struct {
			Variables map[string]any `json:"variables"`
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)
		assert.Equal(t, "acme", req.Variables["owner"])
		assert.Equal(t, float64(7), req.Variables["number"])
		fmt.Fprint(w, `{"data":{"repository":{"pullRequest":{"baseRefName":"main","headRefName":"feature","headRefOid":"abc123"}}}}`)
	})
	c := newTestClient(t, mux)

	got, err := c.PRBranchData(context.Background(), "acme", "widgets", 7)
	require.NoError(t, err)
	assert.Equal(t, BranchData{BaseRefName: "main", HeadRefName: "feature", HeadRefOid: "abc123"}, got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPRBranchDataNotFound(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/graphql", func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"data":{"repository":{"pullRequest":null}},"errors":[{"type":"NOT_FOUND","message":"Could not resolve to a PullRequest with the number of 99."}]}`)
	})
	c := newTestClient(t, mux)

	_, err := c.PRBranchData(context.Background(), "acme", "widgets", 99)
	assert.ErrorIs(t, err, ErrEntityNotFound)
	assert.Equal(t, int32(1), calls.Load(), "not-found is never retried")
}

func TestListIssueCommentsPaginates(t *testing.T) {
	t.Parallel()
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/widgets/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"id":3,"body":"three"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/api/v3/repos/acme/widgets/issues/7/comments?per_page=100&page=2>; rel="next"`, srvURL))
		fmt.Fprint(w, `[{"id":1,"body":"one"},{"id":2,"body":"two"}]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	srvURL = srv.URL
	c, err := NewClient(context.Background(), Options{APIURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	got, err := c.ListIssueComments(context.Background(), "acme", "widgets", 7)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "three", got[2].GetBody())

	_, err = c.ListIssueComments(context.Background(), "acme", "widgets", 0)
	assert.Error(t, err)
}

func TestListReviewComments(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/widgets/pulls/7/comments", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[{"id":10,"body":"nit","path":"main.go"}]`)
	})
	c := newTestClient(t, mux)

	got, err := c.ListReviewComments(context.Background(), "acme", "widgets", 7)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "main.go", got[0].GetPath())
}

func TestListReviewCommentsPermanentError(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/widgets/pulls/7/comments", func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	c := newTestClient(t, mux)

	_, err := c.ListReviewComments(context.Background(), "acme", "widgets", 7)
	var respErr *github.ErrorResponse
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCreateCommentAndGetUser(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v3/repos/acme/widgets/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		var in github.IssueComment
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "Droid is working…", in.GetBody())
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":555}`)
	})
	mux.HandleFunc("GET /api/v3/users/alice", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"login":"alice","type":"User"}`)
	})
	c := newTestClient(t, mux)

	id, err := c.CreateComment(context.Background(), "acme", "widgets", 7, "Droid is working…")
	require.NoError(t, err)
	assert.Equal(t, int64(555), id)

	u, err := c.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "User", u.GetType())
}

func TestCanReadActions(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/{repo}/actions/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer workflow-token", r.Header.Get("Authorization"))
		assert.Equal(t, "1", r.URL.Query().Get("per_page"))
		if r.PathValue("repo") == "locked" {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"message":"Resource not accessible by integration"}`)
			return
		}
		fmt.Fprint(w, `{"total_count":0,"workflow_runs":[]}`)
	})
	c := newTestClient(t, mux)

	assert.True(t, c.CanReadActions(context.Background(), "workflow-token", "acme", "widgets"))
	assert.False(t, c.CanReadActions(context.Background(), "workflow-token", "acme", "locked"))
}

func TestIsTransient(t *testing.T) {
	t.Parallel()
	resp := func(code int, remaining string) *http.Response {
		h := http.Header{}
		if remaining != "" {
			h.Set("X-Ratelimit-Remaining", remaining)
		}
		return &http.Response{StatusCode: code, Header: h, Request: &http.Request{}}
	}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", &github.RateLimitError{Response: resp(403, "0")}, true},
		{"abuse", &github.AbuseRateLimitError{Response: resp(403, "")}, true},
		{"server error", &github.ErrorResponse{Response: resp(503, "")}, true},
		{"too many requests", &github.ErrorResponse{Response: resp(429, "")}, true},
		{"forbidden exhausted", &github.ErrorResponse{Response: resp(403, "0")}, true},
		{"forbidden", &github.ErrorResponse{Response: resp(403, "10")}, false},
		{"not found", &github.ErrorResponse{Response: resp(404, "")}, false},
		{"graphql 502", errors.New(`non-200 OK status code: 502 Bad Gateway body: "x"`), true},
		{"graphql 401", errors.New(`non-200 OK status code: 401 Unauthorized body: "x"`), false},
		{"unexpected eof", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), true},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTransient(tt.err), tt.name)
	}
}
