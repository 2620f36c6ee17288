package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/droid-action/droidprep/internal/command"
	"github.com/droid-action/droidprep/internal/config"
	"github.com/droid-action/droidprep/internal/ghcontext"
	"github.com/droid-action/droidprep/internal/githubapi"
	"github.com/droid-action/droidprep/internal/materialize"
	"github.com/droid-action/droidprep/internal/prompt"
	"github.com/droid-action/droidprep/internal/trigger"
)

// Host is the subset of the GitHub client the dispatcher needs.
type Host interface {
	materialize.CommentLister
	trigger.UserGetter
	PRBranchData(ctx context.Context, owner, repo string, number int) (githubapi.BranchData, error)
	CreateComment(ctx context.Context, owner, repo string, number int, body string) (int64, error)
	CanReadActions(ctx context.Context, token, owner, repo string) bool
}

// Output keys shared with the workflow.
const (
	OutputDroidArgs        = "droid_args"
	OutputMCPTools         = "mcp_tools"
	OutputRunCodeReview    = "run_code_review"
	OutputRunSecurity      = "run_security_review"
	OutputInstallSkills    = "install_security_skills"
	OutputCommentID        = "droid_comment_id"
	OutputReviewPRNumber   = "review_pr_number"
	OutputContainsTrigger  = "contains_trigger"
	OutputSkipped          = "skipped"
	OutputSkipReason       = "skip_reason"
	OutputGitHubToken      = "github_token"
	EnvRunType             = "DROID_EXEC_RUN_TYPE"
	SkipNoTrigger          = "no_trigger"
	defaultValidatorModel  = "gpt-5.2"
	defaultValidatorEffort = "high"
)

// BranchInfo describes the branches a run works with.
type BranchInfo struct {
	BaseBranch    string
	DroidBranch   string
	CurrentBranch string
}

// Result is what a dispatch produced. Outputs and Env are written to the
// step outputs and the job environment by the caller.
type Result struct {
	Mode      Mode
	CommentID int64
	Branch    BranchInfo
	MCPTools  string
	Skipped   bool
	Reason    string
	Outputs   map[string]string
	Env       map[string]string
}

func newResult(mode Mode) *Result {
	return &Result{Mode: mode, Outputs: map[string]string{}, Env: map[string]string{}}
}

func (r *Result) setFlags(f *RunFlags) {
	if f == nil {
		return
	}
	r.Outputs[OutputRunCodeReview] = strconv.FormatBool(f.Code)
	r.Outputs[OutputRunSecurity] = strconv.FormatBool(f.Security)
}

// Dispatcher runs the dispatch state machine against one host.
type Dispatcher struct {
	Host   Host
	Git    materialize.GitRunner
	Config *config.Config
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Dispatch decides the mode of c and prepares it. Runs without a trigger and
// idempotency skips return a skipped Result, not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, c *ghcontext.Context) (*Result, error) {
	log := clog.FromContext(ctx).With("event", string(c.EventName), "number", c.EntityNumber)
	ctx = clog.WithLogger(ctx, log)

	if !trigger.ShouldRun(ctx, c) {
		log.InfoContext(ctx, "no trigger found, skipping")
		res := newResult(ModeSkip)
		res.Skipped = true
		res.Reason = SkipNoTrigger
		res.Outputs[OutputContainsTrigger] = "false"
		res.Outputs[OutputSkipped] = "true"
		res.Outputs[OutputSkipReason] = SkipNoTrigger
		return res, nil
	}

	if err := trigger.CheckHumanActor(ctx, d.Host, c.Actor, c.Inputs.AllowedBotList()); err != nil {
		return nil, err
	}

	cmd := command.NewParser(c.Inputs.TriggerPhrase).Extract(c)
	hasPrior := false
	if c.Inputs.AutomaticSecurityReview && c.IsPR {
		hasPrior = d.hasPriorSecurityReview(ctx, c)
	}

	decision, err := Decide(c, cmd, hasPrior)
	if err != nil {
		return nil, err
	}
	log.InfoContext(ctx, "dispatched", "mode", string(decision.Mode))

	if decision.Mode == ModeSkip {
		res := newResult(ModeSkip)
		res.Skipped = true
		res.Reason = decision.SkipReason
		res.Outputs[OutputContainsTrigger] = "true"
		res.Outputs[OutputSkipped] = "true"
		res.Outputs[OutputSkipReason] = decision.SkipReason
		return res, nil
	}

	security := decision.Mode.Security() || c.Inputs.AutomaticSecurityReview
	commentID, err := d.trackingComment(ctx, c, security)
	if err != nil {
		return nil, err
	}

	var res *Result
	switch decision.Mode {
	case ModeDualReview:
		res = newResult(ModeDualReview)
	case ModeReview:
		res, err = d.prepareReview(ctx, c, commentID, reviewOptions{})
	case ModeSecurityReview:
		res, err = d.prepareSecurityReview(ctx, c, commentID, reviewOptions{})
	case ModeFill:
		res, err = d.prepareFill(ctx, c, commentID)
	case ModeSecurityScan:
		res, err = d.prepareSecurityScan(ctx, c, commentID)
	default:
		err = fmt.Errorf("dispatch: no preparer for mode %q", decision.Mode)
	}
	if err != nil {
		return nil, err
	}
	res.CommentID = commentID
	res.setFlags(decision.Flags)
	res.Outputs[OutputContainsTrigger] = "true"
	res.Outputs[OutputCommentID] = strconv.FormatInt(commentID, 10)
	return res, nil
}

// hasPriorSecurityReview scans the entity comments for the security review
// marker. A failed lookup counts as no prior review.
func (d *Dispatcher) hasPriorSecurityReview(ctx context.Context, c *ghcontext.Context) bool {
	comments, err := d.Host.ListIssueComments(ctx, c.Repository.Owner, c.Repository.Repo, c.EntityNumber)
	if err != nil {
		clog.WarnContextf(ctx, "failed to check for an existing security review: %v", err)
		return false
	}
	found := HasPriorRun(comments, SecurityReviewMarker)
	if found {
		clog.FromContext(ctx).InfoContext(ctx, "security review already exists on this pull request")
	}
	return found
}

// trackingComment reuses DROID_COMMENT_ID when set and otherwise creates the
// tracking comment.
func (d *Dispatcher) trackingComment(ctx context.Context, c *ghcontext.Context, security bool) (int64, error) {
	if id := c.Inputs.DroidCommentID; id != 0 {
		clog.FromContext(ctx).InfoContext(ctx, "reusing tracking comment", "comment_id", id)
		return id, nil
	}
	body, err := prompt.RenderTrackingComment(security, d.Config.Runner.RunURL())
	if err != nil {
		return 0, err
	}
	id, err := d.Host.CreateComment(ctx, c.Repository.Owner, c.Repository.Repo, c.EntityNumber, body)
	if err != nil {
		return 0, fmt.Errorf("create tracking comment: %w", err)
	}
	clog.FromContext(ctx).InfoContext(ctx, "created tracking comment", "comment_id", id)
	return id, nil
}

// PrepareValidator prepares the validator pass of a two-phase review. It
// requires REVIEW_USE_VALIDATOR and an existing tracking comment.
func (d *Dispatcher) PrepareValidator(ctx context.Context, c *ghcontext.Context) (*Result, error) {
	if !c.IsPR {
		return nil, &ConfigurationError{Reason: "prepare-validator requires a pull request context"}
	}
	if !c.Inputs.ReviewUseValidator {
		return nil, &ConfigurationError{Reason: "review_use_validator must be true to run prepare-validator"}
	}
	if c.Inputs.DroidCommentID == 0 {
		return nil, &ConfigurationError{Reason: "DROID_COMMENT_ID is required for the validator run"}
	}
	res, err := d.prepareValidator(ctx, c, c.Inputs.DroidCommentID)
	if err != nil {
		return nil, err
	}
	res.CommentID = c.Inputs.DroidCommentID
	res.Outputs[OutputCommentID] = strconv.FormatInt(res.CommentID, 10)
	res.Outputs[OutputReviewPRNumber] = strconv.Itoa(c.EntityNumber)
	return res, nil
}

// ReviewKind selects the prompt GenerateReviewPrompt renders.
type ReviewKind string

const (
	ReviewKindCode     ReviewKind = "review"
	ReviewKindSecurity ReviewKind = "security"
)

// GenerateReviewPrompt prepares one half of a dual review. It never creates
// a tracking comment; DROID_COMMENT_ID is used when present.
func (d *Dispatcher) GenerateReviewPrompt(ctx context.Context, c *ghcontext.Context, kind ReviewKind) (*Result, error) {
	if !c.IsPR {
		return nil, &ConfigurationError{Reason: "review is only supported on pull requests"}
	}
	opts := reviewOptions{builtInOnly: true}
	commentID := c.Inputs.DroidCommentID

	var (
		res *Result
		err error
	)
	switch kind {
	case ReviewKindCode:
		opts.model = c.Inputs.ReviewModel
		res, err = d.prepareReview(ctx, c, commentID, opts)
	case ReviewKindSecurity:
		res, err = d.prepareSecurityReview(ctx, c, commentID, opts)
	default:
		return nil, &ConfigurationError{Reason: fmt.Sprintf("unknown review kind %q", kind)}
	}
	if err != nil {
		return nil, err
	}
	res.CommentID = commentID
	return res, nil
}

// GenerateCombinePrompt prepares the run that merges the two halves of a
// dual review into inline comments and one tracking comment summary.
func (d *Dispatcher) GenerateCombinePrompt(ctx context.Context, c *ghcontext.Context) (*Result, error) {
	if !c.IsPR {
		return nil, &ConfigurationError{Reason: "combine is only supported on pull requests"}
	}
	commentID := c.Inputs.DroidCommentID
	res, err := d.prepareCombine(ctx, c, commentID)
	if err != nil {
		return nil, err
	}
	res.CommentID = commentID
	return res, nil
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

var _ Host = (*githubapi.Client)(nil)

func prNumber(c *ghcontext.Context) (int, error) {
	if !c.IsPR || c.EntityNumber <= 0 {
		return 0, &ConfigurationError{Reason: fmt.Sprintf("%s requires a pull request context", c.EventName)}
	}
	return c.EntityNumber, nil
}
