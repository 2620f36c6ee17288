package dispatch

import (
	"strings"

	"github.com/google/go-github/v75/github"
)

const (
	// SecurityReviewMarker heads the summary a finished security review leaves.
	SecurityReviewMarker = "## Security Review Summary"
	// BotUserID is the user id of the droid GitHub App bot.
	BotUserID int64 = 209825114
)

// IsAutomationIdentity reports whether u is the droid bot.
func IsAutomationIdentity(u *github.User) bool {
	if u == nil {
		return false
	}
	if u.GetID() == BotUserID {
		return true
	}
	return u.GetType() == "Bot" && strings.Contains(strings.ToLower(u.GetLogin()), "droid")
}

// HasPriorRun reports whether one of comments was left by the droid bot and
// contains marker.
func HasPriorRun(comments []*github.IssueComment, marker string) bool {
	for _, c := range comments {
		if IsAutomationIdentity(c.GetUser()) && strings.Contains(c.GetBody(), marker) {
			return true
		}
	}
	return false
}
