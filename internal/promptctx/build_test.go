package promptctx

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-github/v75/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droid-action/droidprep/internal/config"
	"github.com/droid-action/droidprep/internal/ghcontext"
)

func issueComment(isPR bool, id int64, body string) *ghcontext.Context {
	issue := &github.Issue{Number: github.Ptr(12)}
	if isPR {
		issue.PullRequestLinks = &github.PullRequestLinks{URL: github.Ptr("https://api.github.com/repos/acme/widgets/pulls/12")}
	}
	return &ghcontext.Context{
		EventName:    ghcontext.IssueComment,
		EventAction:  "created",
		Repository:   ghcontext.Repository{Owner: "acme", Repo: "widgets", FullName: "acme/widgets"},
		EntityNumber: 12,
		IsPR:         isPR,
		Payload: &github.IssueCommentEvent{
			Issue: issue,
			Comment: &github.IssueComment{
				ID:   github.Ptr(id),
				Body: github.Ptr(body),
				User: &github.User{Login: github.Ptr("octocat")},
			},
		},
	}
}

func TestNewEventData(t *testing.T) {
	t.Parallel()
	branches := Extras{BaseBranch: "main", DroidBranch: "droid/issue-12"}

	tests := []struct {
		name    string
		ctx     *ghcontext.Context
		extras  Extras
		want    EventData
		wantErr bool
	}{
		{
			name: "comment on pull request",
			ctx:  issueComment(true, 5, "@droid review"),
			want: EventData{EventName: ghcontext.IssueComment, EventAction: "created", IsPR: true, PRNumber: 12, CommentID: 5, CommentBody: "@droid review"},
		},
		{
			name:    "comment on issue without branches",
			ctx:     issueComment(false, 5, "@droid fix"),
			wantErr: true,
		},
		{
			name:   "comment on issue with branches",
			ctx:    issueComment(false, 5, "@droid fix"),
			extras: branches,
			want: EventData{EventName: ghcontext.IssueComment, EventAction: "created", IssueNumber: 12, CommentID: 5,
				CommentBody: "@droid fix", BaseBranch: "main", DroidBranch: "droid/issue-12"},
		},
		{
			name:    "comment without body",
			ctx:     issueComment(true, 5, ""),
			wantErr: true,
		},
		{
			name: "issue labeled",
			ctx: &ghcontext.Context{
				EventName: ghcontext.Issues, EventAction: "labeled", EntityNumber: 3,
				Payload: &github.IssuesEvent{Issue: &github.Issue{Number: github.Ptr(3)}, Label: &github.Label{Name: github.Ptr("droid")}},
			},
			extras: branches,
			want: EventData{EventName: ghcontext.Issues, EventAction: "labeled", IssueNumber: 3, LabelTrigger: "droid",
				BaseBranch: "main", DroidBranch: "droid/issue-12"},
		},
		{
			name: "issue assigned",
			ctx: &ghcontext.Context{
				EventName: ghcontext.Issues, EventAction: "assigned", EntityNumber: 3,
				Payload: &github.IssuesEvent{Issue: &github.Issue{Number: github.Ptr(3)}, Assignee: &github.User{Login: github.Ptr("droid-bot")}},
			},
			extras: branches,
			want: EventData{EventName: ghcontext.Issues, EventAction: "assigned", IssueNumber: 3, AssigneeTrigger: "droid-bot",
				BaseBranch: "main", DroidBranch: "droid/issue-12"},
		},
		{
			name: "issue closed is unsupported",
			ctx: &ghcontext.Context{
				EventName: ghcontext.Issues, EventAction: "closed", EntityNumber: 3,
				Payload: &github.IssuesEvent{Issue: &github.Issue{Number: github.Ptr(3)}},
			},
			extras:  branches,
			wantErr: true,
		},
		{
			name: "review without body",
			ctx: &ghcontext.Context{
				EventName: ghcontext.PullRequestReview, EventAction: "submitted", EntityNumber: 4, IsPR: true,
				Payload: &github.PullRequestReviewEvent{PullRequest: &github.PullRequest{}, Review: &github.PullRequestReview{}},
			},
			wantErr: true,
		},
		{
			name: "review comment",
			ctx: &ghcontext.Context{
				EventName: ghcontext.PullRequestReviewComment, EventAction: "created", EntityNumber: 4, IsPR: true,
				Payload: &github.PullRequestReviewCommentEvent{
					PullRequest: &github.PullRequest{},
					Comment:     &github.PullRequestComment{ID: github.Ptr(int64(8)), Body: github.Ptr("nit")},
				},
			},
			want: EventData{EventName: ghcontext.PullRequestReviewComment, EventAction: "created", IsPR: true, PRNumber: 4, CommentID: 8, CommentBody: "nit"},
		},
		{
			name: "pull request",
			ctx: &ghcontext.Context{
				EventName: ghcontext.PullRequest, EventAction: "opened", EntityNumber: 4, IsPR: true,
				Payload: &github.PullRequestEvent{PullRequest: &github.PullRequest{}},
			},
			want: EventData{EventName: ghcontext.PullRequest, EventAction: "opened", IsPR: true, PRNumber: 4},
		},
		{
			name:    "nil context",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NewEventData(tt.ctx, tt.extras)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidEvent))
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("NewEventData() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()
	c := issueComment(true, 5, "@droid security")
	c.Inputs = config.Inputs{SecurityBlockOnCritical: true, SecurityNotifyTeam: "@acme/sec"}
	now := func() time.Time { return time.Date(2026, 3, 9, 23, 30, 0, 0, time.FixedZone("x", -5*3600)) }

	got, err := Build(c, Params{
		CommentID: 77,
		PRBranch:  &Branch{HeadRefName: "feature", HeadRefOid: "abc"},
		Artifacts: &Artifacts{DiffPath: "/tmp/p/pr.diff", CommentsPath: "/tmp/p/existing_comments.json"},
		Now:       now,
		PromptDir: "/tmp/p",
	})
	require.NoError(t, err)
	assert.Equal(t, "acme/widgets", got.Repository)
	assert.Equal(t, int64(77), got.CommentID)
	assert.Equal(t, config.DefaultTriggerPhrase, got.TriggerPhrase)
	assert.Equal(t, "octocat", got.TriggerUsername)
	assert.Equal(t, "2026-03-10", got.Date)
	assert.Equal(t, Security{SeverityThreshold: "medium", BlockOnCritical: true, NotifyTeam: "@acme/sec"}, got.Security)
	assert.Equal(t, "/tmp/p/review_candidates.json", got.CandidatesPath)
	assert.Equal(t, 12, got.Event.Number())
	assert.True(t, got.Scan.Full())

	_, err = Build(issueComment(false, 5, "@droid"), Params{})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestBuildHandOffPaths(t *testing.T) {
	t.Parallel()
	c := issueComment(true, 5, "@droid review")
	combine := Combine{CodeReviewResults: "/r/code.json", SecurityResults: "/r/security.json"}

	got, err := Build(c, Params{PromptDir: "/tmp/p", CandidatesPath: "/work/candidates.json", Combine: combine})
	require.NoError(t, err)
	assert.Equal(t, "/work/candidates.json", got.CandidatesPath)
	assert.Equal(t, "/tmp/p/review_validated.json", got.ValidatedPath)
	assert.Equal(t, combine, got.Combine)

	got, err = Build(c, Params{CandidatesPath: "/work/candidates.json"})
	require.NoError(t, err)
	assert.Equal(t, "/work/candidates.json", got.CandidatesPath)
	assert.Empty(t, got.ValidatedPath)
}
