// Package command classifies free text into an agent command.
package command

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/go-github/v75/github"

	"github.com/droid-action/droidprep/internal/ghcontext"
)

// Name identifies a command.
type Name string

// Known commands. ReviewSecurity is never produced by the parser; it is
// accepted by the dispatcher for callers that request both reviews at once.
const (
	Fill           Name = "fill"
	Review         Name = "review"
	ReviewSecurity Name = "review-security"
	Security       Name = "security"
	SecurityFull   Name = "security-full"
	Default        Name = "default"
)

// Location tells which structural field supplied the text.
type Location string

const (
	LocationBody    Location = "body"
	LocationComment Location = "comment"
)

// Parsed is a command found in a piece of text.
type Parsed struct {
	Command Name
	// Raw is the matched text.
	Raw      string
	Location Location
	// Timestamp is the RFC 3339 creation time of the comment or review, if any.
	Timestamp string
}

type rule struct {
	command Name
	pattern *regexp.Regexp
}

// Parser matches commands addressed to one trigger phrase. Rules are tried in
// order against the whole text and the first rule that matches wins, wherever
// its match sits in the text.
type Parser struct {
	trigger string
	rules   []rule
}

// NewParser builds the ordered rule table for trigger.
func NewParser(trigger string) *Parser {
	trigger = strings.TrimSpace(trigger)
	if trigger == "" {
		trigger = "@droid"
	}

	// RE2's \b only knows ASCII word characters, so boundaries are spelled
	// out with Unicode classes. The lead sits outside group 1, which is the
	// reported match.
	lead := ""
	if r, _ := utf8.DecodeRuneInString(trigger); isWord(r) {
		lead = `(?:^|` + nonWord + `)`
	}
	head := regexp.QuoteMeta(trigger)
	tail := ""
	if r, _ := utf8.DecodeLastRuneInString(trigger); isWord(r) {
		tail = `(?:$|` + nonWord + `)`
	}
	compile := func(body, after string) *regexp.Regexp {
		return regexp.MustCompile(`(?i)` + lead + `(` + head + body + `)` + after)
	}

	return &Parser{
		trigger: trigger,
		rules: []rule{
			{Fill, compile(`\s+fill`, "")},
			{Review, compile(`\s+review`, "")},
			{SecurityFull, compile(`\s+security\s+--full`, "")},
			{Security, compile(`\s+security(?:\s|$|[^-\p{L}\p{N}_])`, "")},
			{Default, compile("", tail)},
		},
	}
}

// nonWord matches one character that cannot continue a word.
const nonWord = `[^\p{L}\p{N}_]`

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Trigger returns the phrase the parser was built for.
func (p *Parser) Trigger() string {
	return p.trigger
}

// Parse returns the command in text, or nil when text does not address the
// trigger. Location defaults to body; Extract re-tags it.
func (p *Parser) Parse(text string) *Parsed {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	for _, r := range p.rules {
		m := r.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		return &Parsed{
			Command:  r.command,
			Raw:      strings.TrimSpace(m[1]),
			Location: LocationBody,
		}
	}
	return nil
}

// Extract parses the text field that triggered the event and tags the result
// with the field's location and timestamp.
func (p *Parser) Extract(c *ghcontext.Context) *Parsed {
	if c == nil || c.Payload == nil {
		return nil
	}

	var (
		text     string
		location = LocationBody
		ts       github.Timestamp
	)
	switch ev := c.Payload.(type) {
	case *github.PullRequestEvent:
		text = ev.GetPullRequest().GetBody()
	case *github.IssuesEvent:
		text = ev.GetIssue().GetBody()
	case *github.IssueCommentEvent:
		text = ev.GetComment().GetBody()
		location = LocationComment
		ts = ev.GetComment().GetCreatedAt()
	case *github.PullRequestReviewCommentEvent:
		text = ev.GetComment().GetBody()
		location = LocationComment
		ts = ev.GetComment().GetCreatedAt()
	case *github.PullRequestReviewEvent:
		text = ev.GetReview().GetBody()
		location = LocationComment
		ts = ev.GetReview().GetSubmittedAt()
	default:
		return nil
	}

	parsed := p.Parse(text)
	if parsed == nil {
		return nil
	}
	parsed.Location = location
	if !ts.IsZero() {
		parsed.Timestamp = ts.UTC().Format(time.RFC3339)
	}
	return parsed
}
