// Package ghcontext normalizes the supported webhook events into one Context
// value that the rest of the pipeline switches on.
package ghcontext

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/go-github/v75/github"

	"github.com/droid-action/droidprep/internal/config"
)

// EventName is the webhook event kind.
type EventName string

// Supported event kinds.
const (
	IssueComment             EventName = "issue_comment"
	Issues                   EventName = "issues"
	PullRequest              EventName = "pull_request"
	PullRequestReview        EventName = "pull_request_review"
	PullRequestReviewComment EventName = "pull_request_review_comment"
)

// Supported reports whether name is one of the handled event kinds.
func Supported(name EventName) bool {
	switch name {
	case IssueComment, Issues, PullRequest, PullRequestReview, PullRequestReviewComment:
		return true
	}
	return false
}

// ErrUnsupportedEventKind is returned for event kinds outside the supported set.
var ErrUnsupportedEventKind = errors.New("unsupported event kind")

// MissingPayloadFieldError reports a required sub-object absent from a payload.
type MissingPayloadFieldError struct {
	Event EventName
	Field string
}

func (e *MissingPayloadFieldError) Error() string {
	return fmt.Sprintf("%s payload is missing %q", e.Event, e.Field)
}

// Repository identifies the repository the event belongs to.
type Repository struct {
	Owner    string
	Repo     string
	FullName string
}

// Context is the normalized view of one webhook event. It is built once per
// run and never mutated afterwards.
type Context struct {
	EventName   EventName
	EventAction string
	Repository  Repository
	Actor       string
	RunID       string
	// EntityNumber is the issue or pull request number.
	EntityNumber int
	IsPR         bool
	Inputs       config.Inputs
	// Payload is one of *github.IssueCommentEvent, *github.IssuesEvent,
	// *github.PullRequestEvent, *github.PullRequestReviewEvent or
	// *github.PullRequestReviewCommentEvent.
	Payload any
}

// LoadEvent reads the event payload written by the runner.
func LoadEvent(path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("event payload path is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event payload %q: %w", path, err)
	}
	return raw, nil
}

// Normalize decodes payload for eventName and builds the Context.
func Normalize(eventName string, payload []byte, runner config.Runner, inputs config.Inputs) (*Context, error) {
	name := EventName(strings.TrimSpace(eventName))
	if !Supported(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEventKind, eventName)
	}
	event, err := github.ParseWebHook(string(name), payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", name, err)
	}
	return FromEvent(name, event, runner, inputs)
}

// FromEvent builds a Context from an already decoded event.
func FromEvent(name EventName, event any, runner config.Runner, inputs config.Inputs) (*Context, error) {
	if !Supported(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEventKind, name)
	}

	c := &Context{
		EventName: name,
		Actor:     runner.Actor,
		RunID:     runner.RunID,
		Inputs:    inputs,
		Payload:   event,
	}

	var (
		repo   *github.Repository
		sender *github.User
	)
	switch ev := event.(type) {
	case *github.IssueCommentEvent:
		if name != IssueComment {
			return nil, mismatch(name, event)
		}
		if ev.Issue == nil {
			return nil, &MissingPayloadFieldError{Event: name, Field: "issue"}
		}
		if ev.Comment == nil {
			return nil, &MissingPayloadFieldError{Event: name, Field: "comment"}
		}
		c.EventAction = ev.GetAction()
		c.EntityNumber = ev.Issue.GetNumber()
		c.IsPR = ev.Issue.IsPullRequest()
		repo, sender = ev.Repo, ev.Sender
	case *github.IssuesEvent:
		if name != Issues {
			return nil, mismatch(name, event)
		}
		if ev.Issue == nil {
			return nil, &MissingPayloadFieldError{Event: name, Field: "issue"}
		}
		c.EventAction = ev.GetAction()
		c.EntityNumber = ev.Issue.GetNumber()
		c.IsPR = false
		repo, sender = ev.Repo, ev.Sender
	case *github.PullRequestEvent:
		if name != PullRequest {
			return nil, mismatch(name, event)
		}
		if ev.PullRequest == nil {
			return nil, &MissingPayloadFieldError{Event: name, Field: "pull_request"}
		}
		c.EventAction = ev.GetAction()
		c.EntityNumber = ev.PullRequest.GetNumber()
		if c.EntityNumber == 0 {
			c.EntityNumber = ev.GetNumber()
		}
		c.IsPR = true
		repo, sender = ev.Repo, ev.Sender
	case *github.PullRequestReviewEvent:
		if name != PullRequestReview {
			return nil, mismatch(name, event)
		}
		if ev.PullRequest == nil {
			return nil, &MissingPayloadFieldError{Event: name, Field: "pull_request"}
		}
		if ev.Review == nil {
			return nil, &MissingPayloadFieldError{Event: name, Field: "review"}
		}
		c.EventAction = ev.GetAction()
		c.EntityNumber = ev.PullRequest.GetNumber()
		c.IsPR = true
		repo, sender = ev.Repo, ev.Sender
	case *github.PullRequestReviewCommentEvent:
		if name != PullRequestReviewComment {
			return nil, mismatch(name, event)
		}
		if ev.PullRequest == nil {
			return nil, &MissingPayloadFieldError{Event: name, Field: "pull_request"}
		}
		if ev.Comment == nil {
			return nil, &MissingPayloadFieldError{Event: name, Field: "comment"}
		}
		c.EventAction = ev.GetAction()
		c.EntityNumber = ev.PullRequest.GetNumber()
		c.IsPR = true
		repo, sender = ev.Repo, ev.Sender
	default:
		return nil, mismatch(name, event)
	}

	fullName := strings.TrimSpace(runner.Repository)
	if fullName == "" {
		fullName = repo.GetFullName()
	}
	owner, repoName, err := config.SplitRepository(fullName)
	if err != nil {
		return nil, err
	}
	c.Repository = Repository{Owner: owner, Repo: repoName, FullName: owner + "/" + repoName}

	if c.Actor == "" {
		c.Actor = sender.GetLogin()
	}
	return c, nil
}

func mismatch(name EventName, event any) error {
	return fmt.Errorf("%s: unexpected payload type %T", name, event)
}

// TriggerUsername is the login of whoever authored the text that triggered the run.
func (c *Context) TriggerUsername() string {
	switch ev := c.Payload.(type) {
	case *github.IssueCommentEvent:
		return ev.GetComment().GetUser().GetLogin()
	case *github.PullRequestReviewCommentEvent:
		return ev.GetComment().GetUser().GetLogin()
	case *github.PullRequestReviewEvent:
		return ev.GetReview().GetUser().GetLogin()
	case *github.IssuesEvent:
		return ev.GetIssue().GetUser().GetLogin()
	case *github.PullRequestEvent:
		return ev.GetPullRequest().GetUser().GetLogin()
	}
	return ""
}

// Title returns the issue or pull request title.
func (c *Context) Title() string {
	switch ev := c.Payload.(type) {
	case *github.IssueCommentEvent:
		return ev.GetIssue().GetTitle()
	case *github.IssuesEvent:
		return ev.GetIssue().GetTitle()
	case *github.PullRequestEvent:
		return ev.GetPullRequest().GetTitle()
	case *github.PullRequestReviewEvent:
		return ev.GetPullRequest().GetTitle()
	case *github.PullRequestReviewCommentEvent:
		return ev.GetPullRequest().GetTitle()
	}
	return ""
}
