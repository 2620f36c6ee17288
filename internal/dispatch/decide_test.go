package dispatch

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-github/v75/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droid-action/droidprep/internal/command"
	"github.com/droid-action/droidprep/internal/config"
	"github.com/droid-action/droidprep/internal/ghcontext"
)

func TestDecide(t *testing.T) {
	t.Parallel()
	pr := func(in config.Inputs) *ghcontext.Context {
		return &ghcontext.Context{IsPR: true, EntityNumber: 1, Inputs: in}
	}
	issue := func(in config.Inputs) *ghcontext.Context { return &ghcontext.Context{EntityNumber: 1, Inputs: in} }
	cmd := func(n command.Name) *command.Parsed { return &command.Parsed{Command: n} }
	both := config.Inputs{AutomaticReview: true, AutomaticSecurityReview: true}

	tests := []struct {
		name      string
		ctx       *ghcontext.Context
		cmd       *command.Parsed
		hasPrior  bool
		want      Decision
		wantCfg   bool
		wantError bool
	}{
		{name: "dual", ctx: pr(both), want: Decision{Mode: ModeDualReview, Flags: &RunFlags{Code: true, Security: true}}},
		{name: "dual with prior", ctx: pr(both), hasPrior: true, want: Decision{Mode: ModeDualReview, Flags: &RunFlags{Code: true}}},
		{name: "dual ignores command", ctx: pr(both), cmd: cmd(command.Fill), want: Decision{Mode: ModeDualReview, Flags: &RunFlags{Code: true, Security: true}}},
		{name: "dual on issue", ctx: issue(both), wantCfg: true},
		{name: "automatic review", ctx: pr(config.Inputs{AutomaticReview: true}), hasPrior: true, want: Decision{Mode: ModeReview, Flags: &RunFlags{Code: true}}},
		{name: "automatic review on issue", ctx: issue(config.Inputs{AutomaticReview: true}), wantCfg: true},
		{name: "automatic security", ctx: pr(config.Inputs{AutomaticSecurityReview: true}), want: Decision{Mode: ModeSecurityReview, Flags: &RunFlags{Security: true}}},
		{name: "automatic security with prior", ctx: pr(config.Inputs{AutomaticSecurityReview: true}), hasPrior: true, want: Decision{Mode: ModeSkip, SkipReason: SkipSecurityReviewExists}},
		{name: "fill", ctx: pr(config.Inputs{}), cmd: cmd(command.Fill), want: Decision{Mode: ModeFill}},
		{name: "review", ctx: pr(config.Inputs{}), cmd: cmd(command.Review), want: Decision{Mode: ModeReview, Flags: &RunFlags{Code: true}}},
		{name: "review security", ctx: pr(config.Inputs{}), cmd: cmd(command.ReviewSecurity), want: Decision{Mode: ModeDualReview, Flags: &RunFlags{Code: true, Security: true}}},
		{name: "security", ctx: pr(config.Inputs{}), cmd: cmd(command.Security), want: Decision{Mode: ModeSecurityReview, Flags: &RunFlags{Security: true}}},
		{name: "security full on issue", ctx: issue(config.Inputs{}), cmd: cmd(command.SecurityFull), want: Decision{Mode: ModeSecurityScan}},
		{name: "default", ctx: pr(config.Inputs{}), cmd: cmd(command.Default), want: Decision{Mode: ModeReview, Flags: &RunFlags{Code: true}}},
		{name: "no command", ctx: pr(config.Inputs{}), want: Decision{Mode: ModeReview, Flags: &RunFlags{Code: true}}},
		{name: "review on issue", ctx: issue(config.Inputs{}), cmd: cmd(command.Review), wantCfg: true},
		{name: "unknown command", ctx: pr(config.Inputs{}), cmd: cmd("deploy"), wantError: true},
		{name: "nil context", wantError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Decide(tt.ctx, tt.cmd, tt.hasPrior)
			switch {
			case tt.wantCfg:
				require.Error(t, err)
				assert.True(t, IsConfigurationError(err), "got %v", err)
				return
			case tt.wantError:
				require.Error(t, err)
				assert.False(t, IsConfigurationError(err))
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decide() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHasPriorRun(t *testing.T) {
	t.Parallel()
	user := func(id int64, login, kind string) *github.User {
		return &github.User{ID: github.Ptr(id), Login: github.Ptr(login), Type: github.Ptr(kind)}
	}
	comment := func(u *github.User, body string) *github.IssueComment {
		return &github.IssueComment{User: u, Body: github.Ptr(body)}
	}

	tests := []struct {
		name     string
		comments []*github.IssueComment
		want     bool
	}{
		{name: "none"},
		{name: "bot id", comments: []*github.IssueComment{comment(user(BotUserID, "factory", "Bot"), "x\n## Security Review Summary\n")}, want: true},
		{name: "droid bot login", comments: []*github.IssueComment{comment(user(1, "Droid-Factory[bot]", "Bot"), "## Security Review Summary")}, want: true},
		{name: "human with marker", comments: []*github.IssueComment{comment(user(2, "droid-fan", "User"), "## Security Review Summary")}},
		{name: "bot without marker", comments: []*github.IssueComment{comment(user(BotUserID, "factory", "Bot"), "## Code Review Summary")}},
		{name: "other bot", comments: []*github.IssueComment{comment(user(3, "dependabot[bot]", "Bot"), "## Security Review Summary")}},
		{name: "nil user", comments: []*github.IssueComment{{Body: github.Ptr("## Security Review Summary")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, HasPriorRun(tt.comments, SecurityReviewMarker))
		})
	}
}
