// Package httpclient is the shared REST client used by the Jira, Frappe,
// internet and proxy components. It retries throttled and failing requests
// with exponential backoff and turns error responses into StatusError.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/mcpsuite/mcpsuite/internal/platform/timeouts"
)

const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 500 * time.Millisecond
	maxBodyBytes          = 16 << 20
	errorTextLimit        = 500
)

var retryStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Options configures a Client.
type Options struct {
	BaseURL string
	// Timeout bounds each attempt. Defaults to timeouts.UpstreamRequest.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt. Zero
	// means the default of 3; negative disables retries.
	MaxRetries int
	// InitialBackoff is the first retry delay (default 500ms).
	InitialBackoff time.Duration
	// Header is sent with every request.
	Header http.Header
	// Limiter, when set, is waited on before every attempt.
	Limiter *rate.Limiter
	// HTTPClient overrides the transport client.
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Client issues requests relative to a base URL.
type Client struct {
	baseURL    string
	header     http.Header
	maxTries   uint
	backoff    time.Duration
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     zerolog.Logger
}

// Request describes one call.
type Request struct {
	Method string
	// Path is joined to the base URL. Absolute URLs are used unchanged.
	Path   string
	Query  url.Values
	Header http.Header
	// JSON is marshaled as the body when non-nil.
	JSON any
	// Body is sent raw when JSON is nil.
	Body []byte
}

// Response is a fully read response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// URL is the final URL after redirects.
	URL string
}

// New builds a client. A trailing slash on BaseURL is dropped.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = timeouts.UpstreamRequest
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	retries := opts.MaxRetries
	switch {
	case retries == 0:
		retries = defaultMaxRetries
	case retries < 0:
		retries = 0
	}
	initial := opts.InitialBackoff
	if initial <= 0 {
		initial = defaultInitialBackoff
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	header := opts.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		header:     header,
		maxTries:   uint(retries + 1),
		backoff:    initial,
		limiter:    opts.Limiter,
		httpClient: httpClient,
		logger:     logger,
	}
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends a JSON request and decodes a JSON response into out (when
// non-nil). Empty response bodies leave out untouched.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	resp, err := c.Send(ctx, Request{Method: method, Path: path, Query: query, JSON: in})
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// Send performs req with retries. A final non-2xx status is returned as
// *StatusError along with the response.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	target, err := c.resolve(req.Path, req.Query)
	if err != nil {
		return nil, err
	}
	body := req.Body
	if req.JSON != nil {
		body, err = json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.backoff

	attempt := func() (*Response, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, backoff.Permanent(err)
			}
		}
		resp, err := c.roundTrip(ctx, method, target, req.Header, body, req.JSON != nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		statusErr := newStatusError(resp)
		if retryStatuses[resp.StatusCode] {
			return resp, statusErr
		}
		return resp, backoff.Permanent(statusErr)
	}

	c.logger.Debug().Str("method", method).Str("url", target).Msg("http request")
	resp, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn().Err(err).Dur("retry_in", next).Str("url", target).Msg("retrying request")
		}),
	)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			c.logger.Error().Int("status", statusErr.Status).Str("url", target).Msg(statusErr.Message)
		}
		return resp, err
	}
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, method, target string, extra http.Header, body []byte, isJSON bool) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	for k, vs := range c.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	for k, vs := range extra {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if isJSON && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	final := target
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		final = httpResp.Request.URL.String()
	}
	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data, URL: final}, nil
}

func (c *Client) resolve(path string, query url.Values) (string, error) {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		if c.baseURL == "" {
			return "", errors.New("base url is required for relative paths")
		}
		if path != "" && !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		target = c.baseURL + path
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + query.Encode()
	}
	return target, nil
}
