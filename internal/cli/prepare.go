package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"github.com/droid-action/droidprep/internal/config"
	"github.com/droid-action/droidprep/internal/dispatch"
	"github.com/droid-action/droidprep/internal/ghcontext"
	"github.com/droid-action/droidprep/internal/ghoutput"
	"github.com/droid-action/droidprep/internal/githubapi"
	"github.com/droid-action/droidprep/internal/materialize"
)

const outputPrepareError = "prepare_error"

// run is everything a preparation command needs, resolved once.
type run struct {
	ctx        context.Context
	cfg        *config.Config
	event      *ghcontext.Context
	dispatcher *dispatch.Dispatcher
}

// newRun loads the configuration and the event payload and connects to the host.
func newRun(cmd *cobra.Command, opts *Options) (*run, error) {
	ctx, cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}

	payload, err := ghcontext.LoadEvent(cfg.Runner.EventPath)
	if err != nil {
		return nil, err
	}
	event, err := ghcontext.Normalize(cfg.Runner.EventName, payload, cfg.Runner, cfg.Inputs)
	if err != nil {
		return nil, err
	}

	client, err := githubapi.NewClient(ctx, githubapi.Options{
		Token:  cfg.Inputs.Token(),
		APIURL: cfg.Runner.APIURL,
	})
	if err != nil {
		return nil, err
	}

	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("repo", cfg.Runner.Repository, "run_id", cfg.Runner.RunID))
	return &run{
		ctx:   ctx,
		cfg:   cfg,
		event: event,
		dispatcher: &dispatch.Dispatcher{
			Host:   client,
			Git:    materialize.ExecGit{Dir: cfg.Runner.Workspace},
			Config: cfg,
		},
	}, nil
}

// publish writes the step outputs and exported variables of res.
func publish(ctx context.Context, cfg *config.Config, res *dispatch.Result, extra map[string]string) error {
	outputs := make(map[string]string, len(res.Outputs)+len(extra))
	for k, v := range res.Outputs {
		outputs[k] = v
	}
	for k, v := range extra {
		outputs[k] = v
	}
	out := ghoutput.Outputs(cfg.Runner.OutputPath)
	if !out.Enabled() {
		log := clog.FromContext(ctx)
		for k, v := range outputs {
			if k == dispatch.OutputGitHubToken {
				continue
			}
			log.InfoContext(ctx, "output", "name", k, "value", v)
		}
	}
	if err := out.Write(outputs); err != nil {
		return fmt.Errorf("write step outputs: %w", err)
	}
	if err := ghoutput.Env(cfg.Runner.EnvPath).Write(res.Env); err != nil {
		return fmt.Errorf("write job environment: %w", err)
	}
	return nil
}

// fail records err as the prepare_error output before returning it.
func fail(ctx context.Context, cfg *config.Config, err error) error {
	if cfg != nil {
		if werr := ghoutput.Outputs(cfg.Runner.OutputPath).Write(map[string]string{outputPrepareError: err.Error()}); werr != nil {
			clog.WarnContextf(ctx, "failed to record prepare error: %v", werr)
		}
	}
	return err
}

// newPrepareCommand creates the "prepare" subcommand that dispatches the event
// and prepares the selected mode.
func newPrepareCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "prepare",
		Short: "Decide the droid mode for the current event and prepare its run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := newRun(cmd, opts)
			if err != nil {
				return err
			}
			res, err := r.dispatcher.Dispatch(r.ctx, r.event)
			if err != nil {
				return fail(r.ctx, r.cfg, err)
			}
			extra := map[string]string{}
			if !res.Skipped {
				extra[dispatch.OutputGitHubToken] = r.cfg.Inputs.Token()
			}
			if err := publish(r.ctx, r.cfg, res, extra); err != nil {
				return err
			}
			if res.Skipped {
				clog.InfoContextf(r.ctx, "skipped: %s", res.Reason)
				return nil
			}
			clog.FromContext(r.ctx).InfoContext(r.ctx, "prepared droid run", "mode", string(res.Mode), "comment_id", res.CommentID)
			return nil
		},
	}
}

// newPrepareValidatorCommand creates the "prepare-validator" subcommand for
// the second pass of a validated review.
func newPrepareValidatorCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "prepare-validator",
		Short: "Prepare the validator pass of a two-phase review",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := newRun(cmd, opts)
			if err != nil {
				return err
			}
			res, err := r.dispatcher.PrepareValidator(r.ctx, r.event)
			if err != nil {
				return fail(r.ctx, r.cfg, fmt.Errorf("prepare validator: %w", err))
			}
			return publish(r.ctx, r.cfg, res, map[string]string{dispatch.OutputGitHubToken: r.cfg.Inputs.Token()})
		},
	}
}

// newGenerateReviewPromptCommand creates the "generate-review-prompt"
// subcommand used by the parallel jobs of a dual review.
func newGenerateReviewPromptCommand(opts *Options) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "generate-review-prompt",
		Short: "Generate the code or security review prompt of a dual review",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := newRun(cmd, opts)
			if err != nil {
				return err
			}
			k := dispatch.ReviewKind(strings.ToLower(strings.TrimSpace(kind)))
			res, err := r.dispatcher.GenerateReviewPrompt(r.ctx, r.event, k)
			if err != nil {
				return fail(r.ctx, r.cfg, fmt.Errorf("generate %s prompt: %w", k, err))
			}
			return publish(r.ctx, r.cfg, res, nil)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(dispatch.ReviewKindCode), "Review kind to generate (review, security)")
	return cmd
}

// newGenerateCombinePromptCommand creates the "generate-combine-prompt"
// subcommand that runs after both halves of a dual review.
func newGenerateCombinePromptCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "generate-combine-prompt",
		Short: "Generate the prompt that merges code and security review results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := newRun(cmd, opts)
			if err != nil {
				return err
			}
			res, err := r.dispatcher.GenerateCombinePrompt(r.ctx, r.event)
			if err != nil {
				return fail(r.ctx, r.cfg, fmt.Errorf("generate combine prompt: %w", err))
			}
			return publish(r.ctx, r.cfg, res, nil)
		},
	}
}
