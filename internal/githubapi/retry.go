package githubapi

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/codeGROOVE-dev/retry"
	"github.com/google/go-github/v75/github"
)

// RetryPolicy is a bounded exponential backoff: Delay doubles on each attempt
// up to MaxDelay.
type RetryPolicy struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns 3 attempts starting at 5s, capped at 20s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 5 * time.Second, MaxDelay: 20 * time.Second}
}

// withRetry runs fn until it succeeds, fails with a non-transient error, or
// the policy is exhausted. The last error is returned unwrapped.
func (c *Client) withRetry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	attempt := 0
	err := retry.Do(
		func() error {
			attempt++
			err := fn()
			if err != nil {
				lastErr = err
				if IsTransient(err) {
					clog.FromContext(ctx).WarnContext(ctx, "transient GitHub API failure",
						"operation", operation, "attempt", attempt, "error", err)
				}
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.retry.Attempts),
		retry.Delay(c.retry.Delay),
		retry.MaxDelay(c.retry.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsTransient),
	)
	if err != nil {
		if lastErr != nil {
			return lastErr
		}
		return err
	}
	return nil
}

var graphQLStatus = regexp.MustCompile(`non-200 OK status code: (\d{3})`)

// IsTransient reports whether err is worth retrying: rate limiting, server
// errors, timeouts and dropped connections. Validation and not-found errors
// are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return transientStatus(respErr.Response.StatusCode, respErr.Response.Header)
	}

	if m := graphQLStatus.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return transientStatus(code, nil)
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

func transientStatus(code int, header http.Header) bool {
	switch {
	case code == http.StatusTooManyRequests:
		return true
	case code >= 500 && code < 600:
		return true
	case code == http.StatusForbidden && header != nil && header.Get("X-Ratelimit-Remaining") == "0":
		return true
	}
	return false
}
