// Package proxy forwards newline-delimited JSON-RPC messages from a stdio
// MCP client to a streamable HTTP MCP endpoint and writes the replies back.
package proxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mcpsuite/mcpsuite/internal/platform/httpclient"
	"github.com/mcpsuite/mcpsuite/internal/platform/id"
	"github.com/mcpsuite/mcpsuite/internal/platform/timeouts"
)

// UserAgent is sent with every forwarded request.
const UserAgent = "MCP-HTTP-Proxy/1.0"

const (
	endpointPath    = "/mcp"
	sessionHeader   = "Mcp-Session-Id"
	versionHeader   = "Mcp-Protocol-Version"
	requestHeader   = "X-Request-Id"
	maxLineBytes    = 16 << 20
	eventStreamMIME = "text/event-stream"
)

// Options configures a Proxy.
type Options struct {
	// BaseURL is the server root; requests go to BaseURL + "/mcp".
	BaseURL string
	// Token, when set, is sent as a bearer token.
	Token string
	// Timeout bounds one forwarded request (default 60s).
	Timeout time.Duration
	// MaxRetries follows httpclient.Options semantics.
	MaxRetries int
	// HTTPClient overrides the transport client.
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Proxy relays JSON-RPC lines to one HTTP endpoint.
type Proxy struct {
	client  *httpclient.Client
	token   string
	logger  zerolog.Logger
	baseURL string

	mu       sync.Mutex
	session  string
	protocol string
}

// ValidateBaseURL checks that raw is an absolute http or https URL.
func ValidateBaseURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return fmt.Errorf("invalid URL %q: must start with http:// or https://", raw)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid URL %q", raw)
	}
	return nil
}

// New builds a proxy for opts.BaseURL.
func New(opts Options) (*Proxy, error) {
	if err := ValidateBaseURL(opts.BaseURL); err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = timeouts.ProxyRequest
	}
	logger := opts.Logger
	client := httpclient.New(httpclient.Options{
		BaseURL:    strings.TrimSpace(opts.BaseURL),
		Timeout:    timeout,
		MaxRetries: opts.MaxRetries,
		HTTPClient: opts.HTTPClient,
		Header:     http.Header{"User-Agent": {UserAgent}},
		Logger:     &logger,
	})
	p := &Proxy{
		client:  client,
		token:   strings.TrimSpace(opts.Token),
		logger:  logger,
		baseURL: client.BaseURL(),
	}
	p.logger.Info().Str("url", p.baseURL).Msg("initialized MCP HTTP proxy")
	return p, nil
}

// Run reads one JSON-RPC message per line from in and writes each reply as
// a single line to out. It returns when in is exhausted or ctx ends.
func (p *Proxy) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	p.logger.Info().Msg("starting proxy loop")
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			select {
			case lines <- bytes.Clone(line):
			case <-ctx.Done():
				readErr <- nil
				return
			}
		}
		readErr <- scanner.Err()
	}()

	w := bufio.NewWriter(out)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("proxy stopped")
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				p.logger.Info().Msg("stdin closed")
				return nil
			}
			for _, reply := range p.Handle(ctx, line) {
				if _, err := w.Write(append(reply, '\n')); err != nil {
					return fmt.Errorf("write stdout: %w", err)
				}
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("write stdout: %w", err)
			}
		}
	}
}

// Handle forwards one message and returns the lines to write back. A failed
// notification yields nothing.
func (p *Proxy) Handle(ctx context.Context, line []byte) [][]byte {
	msg, err := inspect(line)
	if err != nil {
		p.logger.Error().Err(err).Msg("invalid JSON from stdin")
		return [][]byte{errorReply(nil, codeParseError, "Invalid JSON in request", failure{Type: typeJSON})}
	}

	replies, err := p.forward(ctx, line, msg)
	if err == nil {
		return replies
	}
	f := p.classify(err)
	p.logger.Error().Err(err).Str("method", msg.Method).Str("type", f.Type).Msg("forward failed")
	if !msg.ExpectsReply {
		return nil
	}
	return [][]byte{errorReply(msg.ID, f.code(), f.Message, f)}
}

func (p *Proxy) forward(ctx context.Context, line []byte, msg message) ([][]byte, error) {
	header := http.Header{
		"Content-Type": {"application/json"},
		"Accept":       {"application/json, " + eventStreamMIME},
	}
	if rid, err := id.NewID(); err == nil {
		header.Set(requestHeader, rid)
	}
	if p.token != "" {
		header.Set("Authorization", "Bearer "+p.token)
	}
	session, protocol := p.state()
	if session != "" {
		header.Set(sessionHeader, session)
	}
	if protocol != "" {
		header.Set(versionHeader, protocol)
	}

	p.logger.Debug().Str("method", msg.Method).Str("request_id", header.Get(requestHeader)).Msg("forwarding request")
	resp, err := p.client.Send(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   endpointPath,
		Header: header,
		Body:   line,
	})
	if err != nil {
		return nil, err
	}
	if session := resp.Header.Get(sessionHeader); session != "" {
		p.setSession(session)
	}
	p.logger.Debug().Int("status", resp.StatusCode).Msg("received response")

	var replies [][]byte
	switch {
	case strings.HasPrefix(resp.Header.Get("Content-Type"), eventStreamMIME):
		replies, err = unwrapEvents(resp.Body)
		if err != nil {
			return nil, err
		}
	case len(bytes.TrimSpace(resp.Body)) == 0:
		return nil, nil
	default:
		compact, err := compactJSON(resp.Body)
		if err != nil {
			return nil, err
		}
		replies = [][]byte{compact}
	}
	if msg.Method == "initialize" {
		p.rememberProtocol(replies)
	}
	return replies, nil
}

func (p *Proxy) state() (session, protocol string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session, p.protocol
}

// rememberProtocol keeps the negotiated protocol version from an
// initialize result so later requests can announce it.
func (p *Proxy) rememberProtocol(replies [][]byte) {
	for _, reply := range replies {
		var res struct {
			Result struct {
				ProtocolVersion string `json:"protocolVersion"`
			} `json:"result"`
		}
		if json.Unmarshal(reply, &res) != nil || res.Result.ProtocolVersion == "" {
			continue
		}
		p.mu.Lock()
		p.protocol = res.Result.ProtocolVersion
		p.mu.Unlock()
		return
	}
}

func (p *Proxy) setSession(session string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != session {
		p.logger.Info().Str("session", session).Msg("session established")
	}
	p.session = session
}

// message is the part of an inbound line the proxy looks at.
type message struct {
	ID           json.RawMessage
	Method       string
	ExpectsReply bool
}

type envelope struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

// inspect decodes a single message or a batch. A batch expects a reply when
// any member carries an id.
func inspect(line []byte) (message, error) {
	if !json.Valid(line) {
		return message{}, errors.New("malformed JSON")
	}
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []envelope
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return message{}, err
		}
		msg := message{Method: "batch"}
		for _, e := range batch {
			if hasID(e.ID) {
				msg.ExpectsReply = true
			}
		}
		return msg, nil
	}
	var e envelope
	if err := json.Unmarshal(trimmed, &e); err != nil {
		return message{}, err
	}
	return message{ID: e.ID, Method: e.Method, ExpectsReply: hasID(e.ID)}, nil
}

func hasID(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// unwrapEvents returns the data of every server-sent event in body.
// Multi-line data fields are joined with newlines before compaction.
func unwrapEvents(body []byte) ([][]byte, error) {
	var (
		out  [][]byte
		data []string
	)
	flush := func() error {
		if len(data) == 0 {
			return nil
		}
		compact, err := compactJSON([]byte(strings.Join(data, "\n")))
		data = data[:0]
		if err != nil {
			return err
		}
		out = append(out, compact)
		return nil
	}
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		if value, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(value, " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event stream: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

func compactJSON(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, bytes.TrimSpace(raw)); err != nil {
		return nil, &invalidJSONError{err: err}
	}
	return buf.Bytes(), nil
}

type invalidJSONError struct{ err error }

func (e *invalidJSONError) Error() string { return "invalid JSON response: " + e.err.Error() }
func (e *invalidJSONError) Unwrap() error { return e.err }

// Failure types reported in error.data.type.
const (
	typeTimeout    = "timeout_error"
	typeConnection = "connection_error"
	typeHTTP       = "http_error"
	typeJSON       = "json_error"
	typeProxy      = "proxy_error"
)

// JSON-RPC error codes.
const (
	codeParseError  = -32700
	codeInternal    = -32603
	codeServerError = -32000
)

type failure struct {
	Type       string `json:"type"`
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"-"`
}

func (f failure) code() int {
	if f.Type == typeProxy {
		return codeInternal
	}
	return codeServerError
}

func (p *Proxy) classify(err error) failure {
	var (
		statusErr *httpclient.StatusError
		jsonErr   *invalidJSONError
		netErr    net.Error
		urlErr    *url.Error
	)
	switch {
	case errors.As(err, &statusErr):
		return failure{
			Type:       typeHTTP,
			StatusCode: statusErr.StatusCode(),
			Message:    "Server returned error: " + statusErr.Error(),
		}
	case errors.As(err, &jsonErr):
		return failure{Type: typeJSON, Message: "Server returned invalid JSON response"}
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return failure{Type: typeTimeout, Message: "Request timeout - server took too long to respond"}
	case errors.As(err, &urlErr), errors.As(err, &netErr):
		return failure{Type: typeConnection, Message: "Cannot connect to server at " + p.baseURL}
	default:
		return failure{Type: typeProxy, Message: "Proxy error: " + err.Error()}
	}
}

type rpcError struct {
	Code    int     `json:"code"`
	Message string  `json:"message"`
	Data    failure `json:"data"`
}

type rpcReply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   rpcError        `json:"error"`
}

func errorReply(reqID json.RawMessage, code int, msg string, f failure) []byte {
	if len(reqID) == 0 {
		reqID = json.RawMessage("null")
	}
	data, err := json.Marshal(rpcReply{
		JSONRPC: "2.0",
		ID:      reqID,
		Error:   rpcError{Code: code, Message: msg, Data: f},
	})
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"proxy error","data":{"type":"proxy_error"}}}`)
	}
	return data
}
