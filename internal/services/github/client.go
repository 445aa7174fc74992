// Package github implements the GitHub MCP server on top of go-github.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	gh "github.com/google/go-github/v30/github"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
)

const (
	defaultWorkers        = 8
	defaultInitialBackoff = 500 * time.Millisecond
)

// Client wraps the GitHub REST API with retries and repo name resolution.
type Client struct {
	api           *gh.Client
	defaultBranch string
	maxTries      uint
	backoff       time.Duration
	workers       int
	logger        zerolog.Logger

	mu    sync.Mutex
	login string
}

// NewClient authenticates with a static personal access token.
func NewClient(cfg Config, logger *zerolog.Logger) (*Client, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	httpClient.Timeout = timeout

	api := gh.NewClient(httpClient)
	if strings.TrimSpace(cfg.APIURL) != "" {
		base, err := url.Parse(strings.TrimRight(cfg.APIURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse GITHUB_API_URL: %w", err)
		}
		api.BaseURL = base
	}

	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	workers := cfg.TreeWorkers
	if workers <= 0 {
		workers = defaultWorkers
	}
	branch := strings.TrimSpace(cfg.DefaultBranch)
	if branch == "" {
		branch = "main"
	}
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &Client{
		api:           api,
		defaultBranch: branch,
		maxTries:      uint(retries + 1),
		backoff:       defaultInitialBackoff,
		workers:       workers,
		logger:        l,
	}, nil
}

// DefaultBranch is the branch used when a tool omits one.
func (c *Client) DefaultBranch() string {
	return c.defaultBranch
}

func (c *Client) branch(b string) string {
	if b = strings.TrimSpace(b); b != "" {
		return b
	}
	return c.defaultBranch
}

// APIError carries the status of a failed GitHub call.
type APIError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("github %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("github %s: %d %s", e.Op, e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// StatusCode reports the upstream status.
func (e *APIError) StatusCode() int { return e.Status }

// classify turns a go-github failure into a domain error. Missing
// resources and conflicts get their own codes; other statuses stay
// http_error.
func classify(op string, resp *gh.Response, err error) error {
	apiErr := &APIError{Op: op, Message: err.Error(), Err: err}
	var (
		errResp   *gh.ErrorResponse
		rateErr   *gh.RateLimitError
		abuseErr  *gh.AbuseRateLimitError
		hasStatus bool
	)
	switch {
	case errors.As(err, &rateErr):
		apiErr.Status, apiErr.Message, hasStatus = http.StatusTooManyRequests, "rate limit exceeded, resets at "+rateErr.Rate.Reset.Format(time.RFC3339), true
	case errors.As(err, &abuseErr):
		apiErr.Status, apiErr.Message, hasStatus = http.StatusTooManyRequests, abuseErr.Message, true
	case errors.As(err, &errResp):
		apiErr.Status, apiErr.Message, hasStatus = errResp.Response.StatusCode, errResp.Message, true
	case resp != nil && resp.Response != nil:
		apiErr.Status, hasStatus = resp.StatusCode, true
	}
	if !hasStatus {
		return err
	}
	switch apiErr.Status {
	case http.StatusNotFound:
		return apperrors.Wrap(apperrors.CodeNotFound, apiErr.Error(), apiErr)
	case http.StatusConflict:
		return apperrors.Wrap(apperrors.CodeConflict, apiErr.Error(), apiErr)
	}
	return apiErr
}

func retryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		// Transport failures have no status.
		return apperrors.CodeOf(err) == apperrors.CodeConnection
	}
	return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
}

// call runs fn with exponential backoff on rate limits, 5xx and
// connection failures.
func call[T any](ctx context.Context, c *Client, op string, fn func(context.Context) (T, *gh.Response, error)) (T, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.backoff
	attempt := func() (T, error) {
		out, resp, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		err = classify(op, resp, err)
		if ctx.Err() != nil || !retryable(err) {
			return out, backoff.Permanent(err)
		}
		return out, err
	}
	c.logger.Debug().Str("op", op).Msg("github request")
	out, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn().Err(err).Dur("retry_in", next).Str("op", op).Msg("retrying github request")
		}),
	)
	if err != nil {
		c.logger.Error().Err(err).Str("op", op).Msg("github request failed")
	}
	return out, err
}

// Login returns the authenticated user's login, cached after the first
// call.
func (c *Client) Login(ctx context.Context) (string, error) {
	c.mu.Lock()
	login := c.login
	c.mu.Unlock()
	if login != "" {
		return login, nil
	}
	user, err := call(ctx, c, "get user", func(ctx context.Context) (*gh.User, *gh.Response, error) {
		return c.api.Users.Get(ctx, "")
	})
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.login = user.GetLogin()
	c.mu.Unlock()
	return user.GetLogin(), nil
}

// Ping verifies the token.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Login(ctx)
	return err
}

// Repo splits "owner/repo". A bare name is resolved against the
// authenticated user.
func (c *Client) Repo(ctx context.Context, name string) (owner, repo string, err error) {
	name = strings.Trim(strings.TrimSpace(name), "/")
	if name == "" {
		return "", "", apperrors.Validation("repo_name is required")
	}
	if owner, repo, ok := strings.Cut(name, "/"); ok {
		if owner == "" || repo == "" || strings.Contains(repo, "/") {
			return "", "", apperrors.Validation("repo_name must be owner/repo, got %q", name)
		}
		return owner, repo, nil
	}
	login, err := c.Login(ctx)
	if err != nil {
		return "", "", err
	}
	return login, name, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
