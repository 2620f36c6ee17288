package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"

	"github.com/droid-action/droidprep/internal/ghcontext"
	"github.com/droid-action/droidprep/internal/materialize"
	"github.com/droid-action/droidprep/internal/prompt"
	"github.com/droid-action/droidprep/internal/promptctx"
	"github.com/droid-action/droidprep/internal/tools"
)

// Run types exported as DROID_EXEC_RUN_TYPE.
const (
	RunTypeReview         = "droid-review"
	RunTypeSecurityReview = "droid-security-review"
	RunTypeSecurityScan   = "droid-security-scan"
	RunTypeFill           = "droid-fill"
	RunTypeCombine        = "droid-combine"

	defaultScanBase = "main"
)

type reviewOptions struct {
	// builtInOnly limits --enabled-tools to built-in tools.
	builtInOnly bool
	model       string
}

// plan describes one mode preparation.
type plan struct {
	mode      Mode
	profile   tools.Profile
	kind      prompt.Kind
	runType   string
	commentID int64
	flags     tools.Flags
	// branchData resolves the pull request refs.
	branchData bool
	// artifacts materializes the diff and existing comments.
	artifacts bool
	// branch is used instead of resolved branch data.
	branch        BranchInfo
	scan          promptctx.ScanScope
	installSkills bool
	// headAsDroidBranch reports the pull request head as the droid branch.
	headAsDroidBranch bool
	candidatesPath    string
	combine           promptctx.Combine
}

// prepareReview prepares a code review. With REVIEW_USE_VALIDATOR it only
// writes review candidates; prepare-validator posts them later.
func (d *Dispatcher) prepareReview(ctx context.Context, c *ghcontext.Context, commentID int64, opts reviewOptions) (*Result, error) {
	p := plan{
		mode:       ModeReview,
		profile:    tools.ProfileReview,
		kind:       prompt.KindReview,
		runType:    RunTypeReview,
		commentID:  commentID,
		flags:      tools.Flags{BuiltInOnly: opts.builtInOnly, Model: opts.model},
		branchData: true,
		artifacts:  true,
	}
	if c.Inputs.ReviewUseValidator {
		p.profile = tools.ProfileReviewCandidates
		p.kind = prompt.KindReviewCandidates
		p.candidatesPath = strings.TrimSpace(c.Inputs.ReviewCandidatesPath)
	}
	return d.run(ctx, c, p)
}

func (d *Dispatcher) prepareSecurityReview(ctx context.Context, c *ghcontext.Context, commentID int64, opts reviewOptions) (*Result, error) {
	return d.run(ctx, c, plan{
		mode:          ModeSecurityReview,
		profile:       tools.ProfileSecurityReview,
		kind:          prompt.KindSecurityReview,
		runType:       RunTypeSecurityReview,
		commentID:     commentID,
		flags:         tools.Flags{BuiltInOnly: opts.builtInOnly, Model: securityModel(c)},
		branchData:    true,
		artifacts:     true,
		installSkills: true,
	})
}

func (d *Dispatcher) prepareFill(ctx context.Context, c *ghcontext.Context, commentID int64) (*Result, error) {
	return d.run(ctx, c, plan{
		mode:       ModeFill,
		profile:    tools.ProfileFill,
		kind:       prompt.KindFill,
		runType:    RunTypeFill,
		commentID:  commentID,
		branchData: true,
	})
}

func (d *Dispatcher) prepareSecurityScan(ctx context.Context, c *ghcontext.Context, commentID int64) (*Result, error) {
	base := strings.TrimSpace(c.Inputs.BaseBranch)
	if base == "" {
		base = defaultScanBase
	}
	branch := c.Inputs.BranchPrefix + "security-report-" + d.now().UTC().Format("2006-01-02")
	return d.run(ctx, c, plan{
		mode:          ModeSecurityScan,
		profile:       tools.ProfileSecurityScan,
		kind:          prompt.KindSecurityScan,
		runType:       RunTypeSecurityScan,
		commentID:     commentID,
		flags:         tools.Flags{Model: securityModel(c)},
		branch:        BranchInfo{BaseBranch: base, DroidBranch: branch, CurrentBranch: branch},
		installSkills: true,
	})
}

func (d *Dispatcher) prepareValidator(ctx context.Context, c *ghcontext.Context, commentID int64) (*Result, error) {
	flags := tools.Flags{
		Model:           strings.TrimSpace(c.Inputs.ReviewModel),
		ReasoningEffort: strings.TrimSpace(c.Inputs.ReasoningEffort),
	}
	if flags.Model == "" && flags.ReasoningEffort == "" {
		flags.Model = defaultValidatorModel
		flags.ReasoningEffort = defaultValidatorEffort
	}
	return d.run(ctx, c, plan{
		mode:              ModeReviewValidator,
		profile:           tools.ProfileValidator,
		kind:              prompt.KindReviewValidator,
		runType:           RunTypeReview,
		commentID:         commentID,
		flags:             flags,
		branchData:        true,
		artifacts:         true,
		headAsDroidBranch: true,
		candidatesPath:    strings.TrimSpace(c.Inputs.ReviewCandidatesPath),
	})
}

func (d *Dispatcher) prepareCombine(ctx context.Context, c *ghcontext.Context, commentID int64) (*Result, error) {
	return d.run(ctx, c, plan{
		mode:       ModeCombine,
		profile:    tools.ProfileCombine,
		kind:       prompt.KindCombine,
		runType:    RunTypeCombine,
		commentID:  commentID,
		flags:      tools.Flags{BuiltInOnly: true},
		branchData: true,
		combine: promptctx.Combine{
			CodeReviewResults: strings.TrimSpace(c.Inputs.CodeReviewResults),
			SecurityResults:   strings.TrimSpace(c.Inputs.SecurityResults),
		},
	})
}

func securityModel(c *ghcontext.Context) string {
	if m := strings.TrimSpace(c.Inputs.SecurityModel); m != "" {
		return m
	}
	return strings.TrimSpace(c.Inputs.ReviewModel)
}

// run resolves branches and artifacts while the tool composition is built,
// then renders the prompt. Both halves must succeed.
func (d *Dispatcher) run(ctx context.Context, c *ghcontext.Context, p plan) (*Result, error) {
	log := clog.FromContext(ctx).With("mode", string(p.mode))
	ctx = clog.WithLogger(ctx, log)
	owner, repo := c.Repository.Owner, c.Repository.Repo
	dir := d.Config.Runner.PromptDir()

	number := c.EntityNumber
	if p.branchData {
		n, err := prNumber(c)
		if err != nil {
			return nil, err
		}
		number = n
	}

	var (
		branch    = p.branch
		prBranch  *promptctx.Branch
		artifacts *promptctx.Artifacts
		comp      tools.Composition
		manifest  string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if !p.branchData {
			return nil
		}
		data, err := d.Host.PRBranchData(gctx, owner, repo, number)
		if err != nil {
			return err
		}
		branch = BranchInfo{BaseBranch: data.BaseRefName, CurrentBranch: data.HeadRefName}
		if p.headAsDroidBranch {
			branch.DroidBranch = data.HeadRefName
		}
		prBranch = &promptctx.Branch{HeadRefName: data.HeadRefName, HeadRefOid: data.HeadRefOid}
		if !p.artifacts {
			return nil
		}
		m := materialize.New(d.Git, d.Host, dir)
		out, err := m.Materialize(gctx, materialize.Request{
			Owner:   owner,
			Repo:    repo,
			Number:  number,
			BaseRef: data.BaseRefName,
			HeadOid: data.HeadRefOid,
		})
		if err != nil {
			return err
		}
		artifacts = &promptctx.Artifacts{DiffPath: out.DiffPath, CommentsPath: out.CommentsPath}
		return nil
	})
	g.Go(func() error {
		var err error
		comp, err = tools.Compose(p.profile, c.Inputs.DroidArgs)
		if err != nil {
			return err
		}
		m := tools.BuildManifest(gctx, comp.AllowedTools, tools.ManifestParams{
			Token:         c.Inputs.Token(),
			Owner:         owner,
			Repo:          repo,
			IsPR:          c.IsPR,
			PRNumber:      c.EntityNumber,
			CommentID:     p.commentID,
			EventName:     string(c.EventName),
			APIURL:        d.Config.Runner.APIURL,
			ServerURL:     d.Config.Runner.ServerURL,
			ActionPath:    d.Config.Runner.ActionPath,
			RunnerTemp:    d.Config.Runner.Temp,
			WorkflowToken: c.Inputs.WorkflowToken,
			Checker:       d.Host,
		})
		manifest, err = m.Marshal()
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	prepared, err := promptctx.Build(c, promptctx.Params{
		CommentID:      p.commentID,
		BaseBranch:     branch.BaseBranch,
		DroidBranch:    branch.DroidBranch,
		PRBranch:       prBranch,
		Artifacts:      artifacts,
		Scan:           p.scan,
		Now:            d.Now,
		PromptDir:      dir,
		CandidatesPath: p.candidatesPath,
		Combine:        p.combine,
	})
	if err != nil {
		return nil, fmt.Errorf("prepare %s prompt context: %w", p.mode, err)
	}

	written, err := prompt.Writer{Dir: dir}.Write(ctx, p.kind, prepared, comp.AllowedTools, tools.Disallowed(comp.AllowedTools))
	if err != nil {
		return nil, err
	}

	if old := tools.DeprecatedTools(comp.UserArgs); len(old) > 0 {
		log.WarnContext(ctx, "tools use the deprecated mcp__ prefix; rename them like github_comment___update_droid_comment",
			"tools", strings.Join(old, ","))
	}

	res := newResult(p.mode)
	res.Branch = branch
	res.MCPTools = manifest
	res.Outputs[OutputDroidArgs] = tools.DroidArgs(comp.AllowedTools, p.flags, comp.UserArgs)
	res.Outputs[OutputMCPTools] = manifest
	if p.installSkills {
		res.Outputs[OutputInstallSkills] = "true"
	}
	res.Env[EnvRunType] = p.runType
	for k, v := range written.Env {
		res.Env[k] = v
	}
	log.InfoContext(ctx, "prepared run", "prompt", written.Path, "tools", len(comp.AllowedTools))
	return res, nil
}
