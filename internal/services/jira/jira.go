// Package jira implements the Jira Cloud MCP server on the REST v3 and
// Agile 1.0 APIs.
package jira

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
	"github.com/mcpsuite/mcpsuite/internal/platform/httpclient"
)

const (
	apiPath   = "/rest/api/3"
	agilePath = "/rest/agile/1.0"
)

var issueKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]+-\d+$`)

// ValidateIssueKey rejects keys that are not PROJECT-123 shaped.
func ValidateIssueKey(key string) error {
	if !issueKeyPattern.MatchString(key) {
		return apperrors.WithMetadata(apperrors.CodeValidation,
			fmt.Sprintf("invalid issue key %q; expected a key like PROJ-123", key),
			map[string]any{"issue_key": key})
	}
	return nil
}

// Client is an authenticated, rate limited Jira client.
type Client struct {
	http    *httpclient.Client
	baseURL string
	logger  zerolog.Logger
}

// NewClient builds a client using basic auth with an API token.
func NewClient(cfg Config, logger *zerolog.Logger) *Client {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	creds := base64.StdEncoding.EncodeToString([]byte(cfg.Email + ":" + cfg.APIToken))
	hc := httpclient.New(httpclient.Options{
		BaseURL:    cfg.BaseURL,
		Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.MaxRetries,
		Header: http.Header{
			"Authorization": {"Basic " + creds},
			"Accept":        {"application/json"},
		},
		Limiter: limiter,
		Logger:  logger,
	})
	return &Client{http: hc, baseURL: hc.BaseURL(), logger: l}
}

// BrowseURL links to an issue in the Jira UI.
func (c *Client) BrowseURL(key string) string {
	return c.baseURL + "/browse/" + key
}

func (c *Client) api(ctx context.Context, method, path string, query url.Values, in, out any) error {
	return c.http.Do(ctx, method, apiPath+path, query, in, out)
}

func (c *Client) agile(ctx context.Context, method, path string, query url.Values, in, out any) error {
	return c.http.Do(ctx, method, agilePath+path, query, in, out)
}

// User is the account behind the credentials.
type User struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress,omitempty"`
}

// Myself verifies the credentials.
func (c *Client) Myself(ctx context.Context) (User, error) {
	var u User
	if err := c.api(ctx, http.MethodGet, "/myself", nil, nil, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Ping reports whether the credentials work.
func (c *Client) Ping(ctx context.Context) error {
	u, err := c.Myself(ctx)
	if err != nil {
		return err
	}
	c.logger.Info().Str("user", u.DisplayName).Msg("connected to jira")
	return nil
}

// str walks nested maps and returns the string at the end of keys.
func str(m map[string]any, keys ...string) string {
	var cur any = m
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = obj[k]
	}
	switch v := cur.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
