package promptctx

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/go-github/v75/github"

	"github.com/droid-action/droidprep/internal/config"
	"github.com/droid-action/droidprep/internal/ghcontext"
)

// ErrInvalidEvent is wrapped by every EventData validation failure.
var ErrInvalidEvent = errors.New("invalid event data")

// Extras are the values an event payload does not carry.
type Extras struct {
	BaseBranch  string
	DroidBranch string
}

// NewEventData builds the EventData variant for c.
func NewEventData(c *ghcontext.Context, extras Extras) (EventData, error) {
	if c == nil {
		return EventData{}, fmt.Errorf("%w: missing context", ErrInvalidEvent)
	}
	d := EventData{
		EventName:   c.EventName,
		EventAction: c.EventAction,
		IsPR:        c.IsPR,
		BaseBranch:  extras.BaseBranch,
		DroidBranch: extras.DroidBranch,
	}
	invalid := func(format string, args ...any) (EventData, error) {
		return EventData{}, fmt.Errorf("%w: %s", ErrInvalidEvent, fmt.Sprintf(format, args...))
	}

	switch ev := c.Payload.(type) {
	case *github.PullRequestReviewCommentEvent:
		if !c.IsPR || c.EntityNumber == 0 {
			return invalid("%s requires pull request context", c.EventName)
		}
		d.PRNumber = c.EntityNumber
		d.CommentID = ev.GetComment().GetID()
		d.CommentBody = ev.GetComment().GetBody()
		if d.CommentBody == "" {
			return invalid("missing comment body for %s", c.EventName)
		}
		return d, nil

	case *github.PullRequestReviewEvent:
		if !c.IsPR || c.EntityNumber == 0 {
			return invalid("%s requires pull request context", c.EventName)
		}
		d.PRNumber = c.EntityNumber
		d.CommentBody = ev.GetReview().GetBody()
		if d.CommentBody == "" {
			return invalid("missing review body for %s", c.EventName)
		}
		return d, nil

	case *github.IssueCommentEvent:
		d.CommentID = ev.GetComment().GetID()
		d.CommentBody = ev.GetComment().GetBody()
		if d.CommentID == 0 || d.CommentBody == "" {
			return invalid("%s requires comment id and body", c.EventName)
		}
		if c.IsPR {
			if c.EntityNumber == 0 {
				return invalid("%s on a pull request requires its number", c.EventName)
			}
			d.PRNumber = c.EntityNumber
			return d, nil
		}
		if d.DroidBranch == "" || d.BaseBranch == "" {
			return invalid("%s on an issue requires droid and base branches", c.EventName)
		}
		d.IssueNumber = c.EntityNumber
		return d, nil

	case *github.IssuesEvent:
		if c.EntityNumber == 0 {
			return invalid("%s requires an issue number", c.EventName)
		}
		if d.DroidBranch == "" || d.BaseBranch == "" {
			return invalid("%s requires droid and base branches", c.EventName)
		}
		d.IssueNumber = c.EntityNumber
		switch c.EventAction {
		case "opened":
		case "assigned":
			d.AssigneeTrigger = ev.GetAssignee().GetLogin()
		case "labeled":
			d.LabelTrigger = ev.GetLabel().GetName()
		default:
			return invalid("unsupported issues action %q", c.EventAction)
		}
		return d, nil

	case *github.PullRequestEvent:
		if !c.IsPR || c.EntityNumber == 0 {
			return invalid("%s requires pull request context", c.EventName)
		}
		d.PRNumber = c.EntityNumber
		return d, nil
	}
	return invalid("unsupported event %q", c.EventName)
}

// Params are the inputs of Build beyond the event context.
type Params struct {
	CommentID   int64
	BaseBranch  string
	DroidBranch string
	PRBranch    *Branch
	Artifacts   *Artifacts
	Scan        ScanScope
	// Now defaults to time.Now.
	Now func() time.Time
	// PromptDir is where the validator hand-off files live.
	PromptDir string
	// CandidatesPath replaces PromptDir/review_candidates.json when set.
	CandidatesPath string
	Combine        Combine
}

// Build assembles the Prepared context of one run.
func Build(c *ghcontext.Context, p Params) (*Prepared, error) {
	event, err := NewEventData(c, Extras{BaseBranch: p.BaseBranch, DroidBranch: p.DroidBranch})
	if err != nil {
		return nil, err
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	in := c.Inputs
	trigger := in.TriggerPhrase
	if trigger == "" {
		trigger = config.DefaultTriggerPhrase
	}
	threshold := in.SecuritySeverityThreshold
	if threshold == "" {
		threshold = "medium"
	}

	prepared := &Prepared{
		Repository:      c.Repository.FullName,
		CommentID:       p.CommentID,
		TriggerPhrase:   trigger,
		TriggerUsername: c.TriggerUsername(),
		DroidBranch:     p.DroidBranch,
		Event:           event,
		PRBranch:        p.PRBranch,
		Artifacts:       p.Artifacts,
		Security: Security{
			SeverityThreshold: threshold,
			BlockOnCritical:   in.SecurityBlockOnCritical,
			BlockOnHigh:       in.SecurityBlockOnHigh,
			NotifyTeam:        in.SecurityNotifyTeam,
		},
		Scan:    p.Scan,
		Date:    now().UTC().Format(time.DateOnly),
		Combine: p.Combine,
	}
	if p.PromptDir != "" {
		prepared.CandidatesPath = filepath.Join(p.PromptDir, "review_candidates.json")
		prepared.ValidatedPath = filepath.Join(p.PromptDir, "review_validated.json")
	}
	if p.CandidatesPath != "" {
		prepared.CandidatesPath = p.CandidatesPath
	}
	return prepared, nil
}
