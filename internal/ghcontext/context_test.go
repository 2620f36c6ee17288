package ghcontext

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-github/v75/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droid-action/droidprep/internal/config"
)

var testRunner = config.Runner{Repository: "acme/widgets", Actor: "octocat", RunID: "123"}

func TestNormalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		event      string
		payload    string
		wantNumber int
		wantPR     bool
		wantAction string
		wantUser   string
	}{{
		name:       "issue comment on pull request",
		event:      "issue_comment",
		payload:    `{"action":"created","issue":{"number":7,"title":"t","pull_request":{"url":"https://api.github.com/repos/acme/widgets/pulls/7"}},"comment":{"id":1,"body":"@droid review","user":{"login":"alice"}}}`,
		wantNumber: 7,
		wantPR:     true,
		wantAction: "created",
		wantUser:   "alice",
	}, {
		name:       "issue comment on bare issue",
		event:      "issue_comment",
		payload:    `{"action":"created","issue":{"number":8},"comment":{"id":2,"body":"@droid","user":{"login":"bob"}}}`,
		wantNumber: 8,
		wantAction: "created",
		wantUser:   "bob",
	}, {
		name:       "issues opened",
		event:      "issues",
		payload:    `{"action":"opened","issue":{"number":9,"body":"b","user":{"login":"carol"}}}`,
		wantNumber: 9,
		wantAction: "opened",
		wantUser:   "carol",
	}, {
		name:       "pull request",
		event:      "pull_request",
		payload:    `{"action":"opened","number":10,"pull_request":{"number":10,"user":{"login":"dave"}}}`,
		wantNumber: 10,
		wantPR:     true,
		wantAction: "opened",
		wantUser:   "dave",
	}, {
		name:       "pull request review",
		event:      "pull_request_review",
		payload:    `{"action":"submitted","pull_request":{"number":11},"review":{"id":5,"body":"@droid","user":{"login":"erin"}}}`,
		wantNumber: 11,
		wantPR:     true,
		wantAction: "submitted",
		wantUser:   "erin",
	}, {
		name:       "pull request review comment",
		event:      "pull_request_review_comment",
		payload:    `{"action":"created","pull_request":{"number":12},"comment":{"id":6,"body":"@droid fill","user":{"login":"frank"}}}`,
		wantNumber: 12,
		wantPR:     true,
		wantAction: "created",
		wantUser:   "frank",
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := Normalize(tt.event, []byte(tt.payload), testRunner, config.Inputs{TriggerPhrase: "@droid"})
			require.NoError(t, err)
			assert.Equal(t, EventName(tt.event), c.EventName)
			assert.Equal(t, tt.wantAction, c.EventAction)
			assert.Equal(t, tt.wantNumber, c.EntityNumber)
			assert.Equal(t, tt.wantPR, c.IsPR)
			assert.Equal(t, tt.wantUser, c.TriggerUsername())
			assert.Equal(t, Repository{Owner: "acme", Repo: "widgets", FullName: "acme/widgets"}, c.Repository)
			assert.Equal(t, "octocat", c.Actor)
			assert.Equal(t, "@droid", c.Inputs.TriggerPhrase)
		})
	}
}

func TestNormalizeUnsupported(t *testing.T) {
	t.Parallel()
	_, err := Normalize("push", []byte(`{}`), testRunner, config.Inputs{})
	assert.ErrorIs(t, err, ErrUnsupportedEventKind)
}

func TestNormalizeMissingPayloadField(t *testing.T) {
	t.Parallel()
	tests := map[string]struct {
		event, payload, field string
	}{
		"pull request":        {"pull_request", `{"action":"opened"}`, "pull_request"},
		"issue comment issue": {"issue_comment", `{"comment":{"id":1}}`, "issue"},
		"issue comment":       {"issue_comment", `{"issue":{"number":1}}`, "comment"},
		"issues":              {"issues", `{"action":"opened"}`, "issue"},
		"review":              {"pull_request_review", `{"pull_request":{"number":1}}`, "review"},
		"review comment":      {"pull_request_review_comment", `{"pull_request":{"number":1}}`, "comment"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Normalize(tt.event, []byte(tt.payload), testRunner, config.Inputs{})
			var missing *MissingPayloadFieldError
			require.True(t, errors.As(err, &missing), "got %v", err)
			assert.Equal(t, tt.field, missing.Field)
			assert.Equal(t, EventName(tt.event), missing.Event)
		})
	}
}

func TestNormalizeRepositoryFallback(t *testing.T) {
	t.Parallel()
	payload := `{"action":"opened","issue":{"number":1},"repository":{"full_name":"other/repo"},"sender":{"login":"sender"}}`
	c, err := Normalize("issues", []byte(payload), config.Runner{}, config.Inputs{})
	require.NoError(t, err)
	assert.Equal(t, "other/repo", c.Repository.FullName)
	assert.Equal(t, "sender", c.Actor)

	_, err = Normalize("issues", []byte(`{"issue":{"number":1}}`), config.Runner{}, config.Inputs{})
	assert.ErrorContains(t, err, "repository is empty")
}

func TestFromEventTypeMismatch(t *testing.T) {
	t.Parallel()
	_, err := FromEvent(Issues, &github.PullRequestEvent{PullRequest: &github.PullRequest{}}, testRunner, config.Inputs{})
	assert.ErrorContains(t, err, "unexpected payload type")
}

func TestLoadEvent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a":1}`), 0o600))

	raw, err := LoadEvent(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(raw))

	_, err = LoadEvent("")
	assert.Error(t, err)
}
