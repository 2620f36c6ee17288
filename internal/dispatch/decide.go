// Package dispatch maps a normalized event to the run mode and prepares the
// artifacts and outputs of that mode.
package dispatch

import (
	"fmt"

	"github.com/droid-action/droidprep/internal/command"
	"github.com/droid-action/droidprep/internal/ghcontext"
)

// Mode is the terminal state of dispatch.
type Mode string

// Run modes.
const (
	ModeFill            Mode = "fill"
	ModeReview          Mode = "review"
	ModeSecurityReview  Mode = "security-review"
	ModeSecurityScan    Mode = "security-scan"
	ModeReviewValidator Mode = "review-validator"
	ModeDualReview      Mode = "dual-review"
	ModeCombine         Mode = "combine"
	ModeSkip            Mode = "skip"
)

// Security reports whether the mode runs the security tooling.
func (m Mode) Security() bool {
	return m == ModeSecurityReview || m == ModeSecurityScan
}

// SkipSecurityReviewExists is the skip reason when a prior security review
// was found on the pull request.
const SkipSecurityReviewExists = "security_review_exists"

// RunFlags are the run_code_review / run_security_review outputs.
type RunFlags struct {
	Code     bool
	Security bool
}

// Decision is the outcome of Decide.
type Decision struct {
	Mode Mode
	// Flags is nil for modes that do not emit run flags.
	Flags *RunFlags
	// SkipReason is set when Mode is ModeSkip.
	SkipReason string
}

// ConfigurationError reports flags that cannot apply to the event.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// rule is one row of the dispatch table. match reports whether the row
// applies; decide builds the decision.
type rule struct {
	name   string
	match  func(in decideInput) bool
	decide func(in decideInput) (Decision, error)
}

type decideInput struct {
	ctx      *ghcontext.Context
	cmd      *command.Parsed
	hasPrior bool
}

func (in decideInput) command() command.Name {
	if in.cmd == nil {
		return command.Default
	}
	return in.cmd.Command
}

var rules = []rule{
	{
		name: "automatic review and security review",
		match: func(in decideInput) bool {
			return in.ctx.Inputs.AutomaticReview && in.ctx.Inputs.AutomaticSecurityReview
		},
		decide: func(in decideInput) (Decision, error) {
			if !in.ctx.IsPR {
				return Decision{}, &ConfigurationError{Reason: "automatic_review and automatic_security_review require a pull request context"}
			}
			return Decision{Mode: ModeDualReview, Flags: &RunFlags{Code: true, Security: !in.hasPrior}}, nil
		},
	},
	{
		name:  "automatic review",
		match: func(in decideInput) bool { return in.ctx.Inputs.AutomaticReview },
		decide: func(in decideInput) (Decision, error) {
			if !in.ctx.IsPR {
				return Decision{}, &ConfigurationError{Reason: "automatic_review requires a pull request context"}
			}
			return Decision{Mode: ModeReview, Flags: &RunFlags{Code: true}}, nil
		},
	},
	{
		name:  "automatic security review",
		match: func(in decideInput) bool { return in.ctx.Inputs.AutomaticSecurityReview },
		decide: func(in decideInput) (Decision, error) {
			if !in.ctx.IsPR {
				return Decision{}, &ConfigurationError{Reason: "automatic_security_review requires a pull request context"}
			}
			if in.hasPrior {
				return Decision{Mode: ModeSkip, SkipReason: SkipSecurityReviewExists}, nil
			}
			return Decision{Mode: ModeSecurityReview, Flags: &RunFlags{Security: true}}, nil
		},
	},
	{
		name:   "command",
		match:  func(decideInput) bool { return true },
		decide: decideCommand,
	},
}

func decideCommand(in decideInput) (Decision, error) {
	var d Decision
	switch in.command() {
	case command.Fill:
		d = Decision{Mode: ModeFill}
	case command.Review, command.Default:
		d = Decision{Mode: ModeReview, Flags: &RunFlags{Code: true}}
	case command.ReviewSecurity:
		d = Decision{Mode: ModeDualReview, Flags: &RunFlags{Code: true, Security: true}}
	case command.Security:
		d = Decision{Mode: ModeSecurityReview, Flags: &RunFlags{Security: true}}
	case command.SecurityFull:
		return Decision{Mode: ModeSecurityScan}, nil
	default:
		return Decision{}, fmt.Errorf("dispatch: unexpected command %q", in.command())
	}
	if !in.ctx.IsPR {
		return Decision{}, &ConfigurationError{Reason: fmt.Sprintf("%s requires a pull request context", d.Mode)}
	}
	return d, nil
}

// Decide evaluates the dispatch rules in order and returns the first match.
// hasPrior reports whether a security review already ran on the entity.
func Decide(c *ghcontext.Context, cmd *command.Parsed, hasPrior bool) (Decision, error) {
	if c == nil {
		return Decision{}, fmt.Errorf("dispatch: missing context")
	}
	in := decideInput{ctx: c, cmd: cmd, hasPrior: hasPrior}
	for _, r := range rules {
		if r.match(in) {
			return r.decide(in)
		}
	}
	return Decision{}, fmt.Errorf("dispatch: no rule matched")
}
