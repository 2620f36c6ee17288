// Package trigger decides whether an event warrants an agent run at all.
package trigger

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"

	"github.com/droid-action/droidprep/internal/ghcontext"
)

// ShouldRun reports whether the event should produce a run. With either
// automatic flag set every pull request event runs; otherwise the event must
// carry the trigger.
func ShouldRun(ctx context.Context, c *ghcontext.Context) bool {
	if c.Inputs.AutomaticReview || c.Inputs.AutomaticSecurityReview {
		if !c.IsPR {
			clog.FromContext(ctx).InfoContext(ctx, "automatic review configured but event is not on a pull request", "event", c.EventName)
		}
		return c.IsPR
	}
	return ContainsTrigger(ctx, c)
}

// ContainsTrigger reports whether the event addresses the agent through the
// assignee trigger, the label trigger, or the trigger phrase.
func ContainsTrigger(ctx context.Context, c *ghcontext.Context) bool {
	log := clog.FromContext(ctx)
	in := c.Inputs

	switch ev := c.Payload.(type) {
	case *github.IssuesEvent:
		switch c.EventAction {
		case "assigned":
			want := strings.TrimPrefix(strings.TrimSpace(in.AssigneeTrigger), "@")
			if want != "" && ev.GetAssignee().GetLogin() == want {
				log.InfoContext(ctx, "issue assigned to trigger user", "user", want)
				return true
			}
		case "labeled":
			want := strings.TrimSpace(in.LabelTrigger)
			if want != "" && ev.GetLabel().GetName() == want {
				log.InfoContext(ctx, "issue labeled with trigger label", "label", want)
				return true
			}
		case "opened", "edited":
			if matchPhrase(in.TriggerPhrase, ev.GetIssue().GetBody()) || matchPhrase(in.TriggerPhrase, ev.GetIssue().GetTitle()) {
				log.InfoContext(ctx, "issue contains trigger phrase", "phrase", in.TriggerPhrase)
				return true
			}
		}
	case *github.PullRequestEvent:
		if matchPhrase(in.TriggerPhrase, ev.GetPullRequest().GetBody()) || matchPhrase(in.TriggerPhrase, ev.GetPullRequest().GetTitle()) {
			log.InfoContext(ctx, "pull request contains trigger phrase", "phrase", in.TriggerPhrase)
			return true
		}
	case *github.PullRequestReviewEvent:
		if c.EventAction == "submitted" || c.EventAction == "edited" {
			if matchPhrase(in.TriggerPhrase, ev.GetReview().GetBody()) {
				log.InfoContext(ctx, "review contains trigger phrase", "phrase", in.TriggerPhrase)
				return true
			}
		}
	case *github.IssueCommentEvent:
		if matchPhrase(in.TriggerPhrase, ev.GetComment().GetBody()) {
			log.InfoContext(ctx, "comment contains trigger phrase", "phrase", in.TriggerPhrase)
			return true
		}
	case *github.PullRequestReviewCommentEvent:
		if matchPhrase(in.TriggerPhrase, ev.GetComment().GetBody()) {
			log.InfoContext(ctx, "review comment contains trigger phrase", "phrase", in.TriggerPhrase)
			return true
		}
	}

	log.DebugContext(ctx, "no trigger found", "event", c.EventName, "action", c.EventAction)
	return false
}

// PhrasePattern matches phrase as a standalone token: preceded by whitespace
// or start of text, followed by whitespace, common punctuation or end of text.
func PhrasePattern(phrase string) *regexp.Regexp {
	return regexp.MustCompile(`(^|\s)` + regexp.QuoteMeta(phrase) + `([\s.,!?;:]|$)`)
}

func matchPhrase(phrase, text string) bool {
	if strings.TrimSpace(phrase) == "" || text == "" {
		return false
	}
	return PhrasePattern(phrase).MatchString(text)
}

// UserGetter looks up an account on the host.
type UserGetter interface {
	GetUser(ctx context.Context, login string) (*github.User, error)
}

// CheckHumanActor rejects runs started by bot accounts unless the bot is
// allowed. An allowed list of "*" admits every bot.
func CheckHumanActor(ctx context.Context, users UserGetter, actor string, allowedBots []string) error {
	user, err := users.GetUser(ctx, actor)
	if err != nil {
		return fmt.Errorf("look up actor %q: %w", actor, err)
	}
	kind := user.GetType()
	clog.FromContext(ctx).DebugContext(ctx, "actor type", "actor", actor, "type", kind)
	if kind == "User" {
		return nil
	}

	if slices.Contains(allowedBots, "*") {
		return nil
	}
	name := strings.ToLower(strings.TrimSuffix(actor, "[bot]"))
	for _, b := range allowedBots {
		if strings.ToLower(strings.TrimSuffix(strings.TrimSpace(b), "[bot]")) == name {
			return nil
		}
	}
	return fmt.Errorf("workflow initiated by non-human actor %q (type %s); add it to allowed_bots or use '*' to allow all bots", actor, kind)
}
