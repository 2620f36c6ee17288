// Package materialize produces the on-disk artifacts a review needs: the
// merge-base diff of the pull request and its existing comments.
package materialize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
	"golang.org/x/sync/errgroup"
)

const (
	// DiffFile is the diff artifact name.
	DiffFile = "pr.diff"
	// CommentsFile is the existing comments artifact name.
	CommentsFile = "existing_comments.json"
	// MaxDiffBytes bounds the diff output.
	MaxDiffBytes = 50 << 20
)

// ErrDiffTooLarge is returned when the diff does not fit in MaxDiffBytes.
var ErrDiffTooLarge = errors.New("diff exceeds the 50 MiB limit")

// Error wraps a failed materialization step.
type Error struct {
	Step string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("materialize %s: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CommentLister lists existing comments on a pull request.
type CommentLister interface {
	ListIssueComments(ctx context.Context, owner, repo string, number int) ([]*github.IssueComment, error)
	ListReviewComments(ctx context.Context, owner, repo string, number int) ([]*github.PullRequestComment, error)
}

// Artifacts are the paths of the materialized files.
type Artifacts struct {
	DiffPath     string
	CommentsPath string
}

// Request describes the pull request to materialize.
type Request struct {
	Owner   string
	Repo    string
	Number  int
	BaseRef string
	HeadOid string
}

// Materializer writes artifacts into Dir.
type Materializer struct {
	git      GitRunner
	comments CommentLister
	dir      string
	maxDiff  int
}

// New returns a Materializer writing into dir.
func New(git GitRunner, comments CommentLister, dir string) *Materializer {
	return &Materializer{git: git, comments: comments, dir: dir, maxDiff: MaxDiffBytes}
}

// Materialize checks out the head commit, computes the diff and fetches the
// existing comments. The diff and the comment fetch run concurrently and both
// must succeed; the first failure cancels the other.
func (m *Materializer) Materialize(ctx context.Context, req Request) (Artifacts, error) {
	var out Artifacts
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := m.Checkout(gctx, req.Number, req.HeadOid); err != nil {
			return err
		}
		path, err := m.Diff(gctx, req.BaseRef)
		if err != nil {
			return err
		}
		out.DiffPath = path
		return nil
	})
	g.Go(func() error {
		path, err := m.Comments(gctx, req.Owner, req.Repo, req.Number)
		if err != nil {
			return err
		}
		out.CommentsPath = path
		return nil
	})
	if err := g.Wait(); err != nil {
		return Artifacts{}, err
	}
	return out, nil
}

// Checkout moves the working tree to headOid, the pull request head rather
// than the synthetic merge commit Actions checks out. It is a no-op when HEAD
// already points there.
func (m *Materializer) Checkout(ctx context.Context, number int, headOid string) error {
	log := clog.FromContext(ctx)
	if headOid == "" {
		return &Error{Step: "checkout", Err: errors.New("head commit is unknown")}
	}
	if head, err := output(ctx, m.git, "rev-parse", "HEAD"); err == nil && head == headOid {
		log.DebugContext(ctx, "working tree already at pull request head", "sha", headOid)
		return nil
	}

	steps := [][]string{
		{"reset", "--hard", "HEAD"},
		{"fetch", "--no-tags", "origin", fmt.Sprintf("+refs/pull/%d/head:refs/remotes/origin/pr/%d", number, number)},
		{"checkout", "--force", "--detach", headOid},
	}
	for _, args := range steps {
		if err := m.git.Run(ctx, nil, args...); err != nil {
			return &Error{Step: "checkout", Err: err}
		}
	}

	head, err := output(ctx, m.git, "rev-parse", "HEAD")
	if err != nil {
		return &Error{Step: "checkout", Err: err}
	}
	if head != headOid {
		return &Error{Step: "checkout", Err: fmt.Errorf("HEAD is %s after checkout, want %s", head, headOid)}
	}
	log.InfoContext(ctx, "checked out pull request head", "number", number, "sha", headOid)
	return nil
}

// Diff writes the diff between the merge base of HEAD and origin/baseRef and
// HEAD. The steps run in sequence and none is retried.
func (m *Materializer) Diff(ctx context.Context, baseRef string) (string, error) {
	log := clog.FromContext(ctx)
	if baseRef == "" {
		return "", &Error{Step: "diff", Err: errors.New("base ref is empty")}
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", &Error{Step: "diff", Err: err}
	}

	if err := m.git.Run(ctx, nil, "fetch", "--unshallow"); err != nil {
		log.DebugContext(ctx, "repository already has full history", "error", err)
	} else {
		log.InfoContext(ctx, "unshallowed repository")
	}

	if err := m.git.Run(ctx, nil, "fetch", "origin", baseRef+":refs/remotes/origin/"+baseRef); err != nil {
		return "", &Error{Step: "diff", Err: fmt.Errorf("fetch base branch %s: %w", baseRef, err)}
	}

	mergeBase, err := output(ctx, m.git, "merge-base", "HEAD", "origin/"+baseRef)
	if err != nil {
		return "", &Error{Step: "diff", Err: fmt.Errorf("merge base with origin/%s: %w", baseRef, err)}
	}

	buf := &boundedBuffer{limit: m.maxDiff}
	err = m.git.Run(ctx, buf, "--no-pager", "diff", mergeBase+"..HEAD")
	if buf.overflow {
		return "", &Error{Step: "diff", Err: ErrDiffTooLarge}
	}
	if err != nil {
		return "", &Error{Step: "diff", Err: err}
	}

	path := filepath.Join(m.dir, DiffFile)
	if err := os.WriteFile(path, buf.buf.Bytes(), 0o644); err != nil {
		return "", &Error{Step: "diff", Err: err}
	}
	log.InfoContext(ctx, "stored pull request diff", "bytes", buf.buf.Len(), "path", path, "merge_base", mergeBase)
	return path, nil
}

type commentsDocument struct {
	IssueComments  []*github.IssueComment       `json:"issueComments"`
	ReviewComments []*github.PullRequestComment `json:"reviewComments"`
}

// Comments fetches issue and review comments concurrently and writes them as
// one JSON document.
func (m *Materializer) Comments(ctx context.Context, owner, repo string, number int) (string, error) {
	doc := commentsDocument{
		IssueComments:  []*github.IssueComment{},
		ReviewComments: []*github.PullRequestComment{},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := m.comments.ListIssueComments(gctx, owner, repo, number)
		if err != nil {
			return err
		}
		if list != nil {
			doc.IssueComments = list
		}
		return nil
	})
	g.Go(func() error {
		list, err := m.comments.ListReviewComments(gctx, owner, repo, number)
		if err != nil {
			return err
		}
		if list != nil {
			doc.ReviewComments = list
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return "", &Error{Step: "comments", Err: err}
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", &Error{Step: "comments", Err: err}
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", &Error{Step: "comments", Err: err}
	}
	path := filepath.Join(m.dir, CommentsFile)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", &Error{Step: "comments", Err: err}
	}
	clog.FromContext(ctx).InfoContext(ctx, "stored existing comments",
		"issue", len(doc.IssueComments), "review", len(doc.ReviewComments), "path", path)
	return path, nil
}
