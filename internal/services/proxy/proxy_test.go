package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func newTestProxy(t *testing.T, baseURL string, opts Options) *Proxy {
	t.Helper()
	opts.BaseURL = baseURL
	if opts.MaxRetries == 0 {
		opts.MaxRetries = -1
	}
	p, err := New(opts)
	if err != nil {
		t.Fatalf("new proxy: %v", err)
	}
	return p
}

type rpcOut struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    struct {
			Type       string `json:"type"`
			StatusCode int    `json:"status_code"`
		} `json:"data"`
	} `json:"error"`
}

func decodeReply(t *testing.T, line []byte) rpcOut {
	t.Helper()
	if bytes.ContainsRune(line, '\n') {
		t.Fatalf("reply spans lines: %q", line)
	}
	var out rpcOut
	if err := json.Unmarshal(line, &out); err != nil {
		t.Fatalf("decode reply %q: %v", line, err)
	}
	return out
}

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr bool
	}{
		{raw: "https://goal-agent.example.com"},
		{raw: "http://localhost:8101/"},
		{raw: "ftp://example.com", wantErr: true},
		{raw: "example.com", wantErr: true},
		{raw: "http://", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			err := ValidateBaseURL(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateBaseURL(%q) err = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
		})
	}
	if _, err := New(Options{BaseURL: "localhost:8101"}); err == nil {
		t.Fatal("expected New to reject a URL without scheme")
	}
}

func TestHandleForwardsAndCompactsResponse(t *testing.T) {
	var got http.Header
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/mcp" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		got = r.Header.Clone()
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{\n  \"jsonrpc\": \"2.0\",\n  \"id\": 7,\n  \"result\": {}\n}\n"))
	}))
	t.Cleanup(srv.Close)

	p := newTestProxy(t, srv.URL+"/", Options{Token: "secret"})
	line := []byte(`{"jsonrpc":"2.0","id":7,"method":"tools/list"}`)
	replies := p.Handle(context.Background(), line)
	if len(replies) != 1 {
		t.Fatalf("expected one reply, got %d", len(replies))
	}
	if string(replies[0]) != `{"jsonrpc":"2.0","id":7,"result":{}}` {
		t.Fatalf("unexpected reply %s", replies[0])
	}
	if string(body) != string(line) {
		t.Fatalf("body not forwarded verbatim: %s", body)
	}
	if got.Get("User-Agent") != UserAgent {
		t.Fatalf("expected user agent %q, got %q", UserAgent, got.Get("User-Agent"))
	}
	if got.Get("Authorization") != "Bearer secret" {
		t.Fatalf("expected bearer token, got %q", got.Get("Authorization"))
	}
	if got.Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected content type %q", got.Get("Content-Type"))
	}
	if !strings.Contains(got.Get("Accept"), "text/event-stream") {
		t.Fatalf("expected event-stream accept, got %q", got.Get("Accept"))
	}
	if got.Get("X-Request-Id") == "" {
		t.Fatal("expected request id header")
	}
}

func TestHandleUnwrapsEventStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: message\nid: 1\ndata: {\"jsonrpc\":\"2.0\",\n")
		_, _ = io.WriteString(w, "data: \"id\":1,\"result\":{\"ok\":true}}\n\n")
		_, _ = io.WriteString(w, ": keepalive\n\n")
		_, _ = io.WriteString(w, "data: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/progress\"}\n")
	}))
	t.Cleanup(srv.Close)

	p := newTestProxy(t, srv.URL, Options{})
	replies := p.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	if len(replies) != 2 {
		t.Fatalf("expected two events, got %d: %q", len(replies), replies)
	}
	if string(replies[0]) != `{"jsonrpc":"2.0","id":1,"result":{"ok":true}}` {
		t.Fatalf("unexpected first event %s", replies[0])
	}
	if !strings.Contains(string(replies[1]), "notifications/progress") {
		t.Fatalf("unexpected second event %s", replies[1])
	}
}

func TestHandleCarriesSessionAndProtocol(t *testing.T) {
	var (
		mu       sync.Mutex
		sessions []string
		versions []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		sessions = append(sessions, r.Header.Get("Mcp-Session-Id"))
		versions = append(versions, r.Header.Get("Mcp-Protocol-Version"))
		mu.Unlock()
		w.Header().Set("Mcp-Session-Id", "sess-1")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2025-06-18"}}`))
	}))
	t.Cleanup(srv.Close)

	p := newTestProxy(t, srv.URL, Options{})
	p.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	p.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))

	mu.Lock()
	defer mu.Unlock()
	if sessions[0] != "" || sessions[1] != "sess-1" {
		t.Fatalf("unexpected session headers %q", sessions)
	}
	if versions[0] != "" || versions[1] != "2025-06-18" {
		t.Fatalf("unexpected protocol headers %q", versions)
	}
}

func TestHandleFailures(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantType   string
		wantStatus int
	}{
		{
			name: "http error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":"no such tool"}`, http.StatusNotFound)
			},
			wantType:   "http_error",
			wantStatus: http.StatusNotFound,
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`<html>oops</html>`))
			},
			wantType: "json_error",
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			wantType: "timeout_error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			t.Cleanup(srv.Close)

			p := newTestProxy(t, srv.URL, Options{Timeout: 100 * time.Millisecond})
			replies := p.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":"abc","method":"tools/call"}`))
			if len(replies) != 1 {
				t.Fatalf("expected one reply, got %d", len(replies))
			}
			out := decodeReply(t, replies[0])
			if string(out.ID) != `"abc"` {
				t.Fatalf("expected id echoed, got %s", out.ID)
			}
			if out.Error == nil {
				t.Fatalf("expected error reply, got %s", replies[0])
			}
			if out.Error.Data.Type != tt.wantType {
				t.Fatalf("expected type %q, got %q (%s)", tt.wantType, out.Error.Data.Type, out.Error.Message)
			}
			if out.Error.Data.StatusCode != tt.wantStatus {
				t.Fatalf("expected status_code %d, got %d", tt.wantStatus, out.Error.Data.StatusCode)
			}
		})
	}
}

func TestHandleConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	p := newTestProxy(t, base, Options{})
	replies := p.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":3,"method":"ping"}`))
	if len(replies) != 1 {
		t.Fatalf("expected one reply, got %d", len(replies))
	}
	out := decodeReply(t, replies[0])
	if out.Error == nil || out.Error.Data.Type != "connection_error" {
		t.Fatalf("expected connection_error, got %s", replies[0])
	}
	if !strings.Contains(out.Error.Message, base) {
		t.Fatalf("expected base url in message, got %q", out.Error.Message)
	}
}

func TestHandleRetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	}))
	t.Cleanup(srv.Close)

	p := newTestProxy(t, srv.URL, Options{MaxRetries: 1})
	replies := p.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	if len(replies) != 1 || decodeReply(t, replies[0]).Error != nil {
		t.Fatalf("expected success after retry, got %q", replies)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestHandleBadInputAndNotifications(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	p := newTestProxy(t, srv.URL, Options{})

	replies := p.Handle(context.Background(), []byte(`{"jsonrpc":`))
	if len(replies) != 1 {
		t.Fatalf("expected parse error reply, got %d", len(replies))
	}
	out := decodeReply(t, replies[0])
	if string(out.ID) != "null" || out.Error == nil || out.Error.Code != -32700 || out.Error.Data.Type != "json_error" {
		t.Fatalf("unexpected parse error reply %s", replies[0])
	}

	if got := p.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)); len(got) != 0 {
		t.Fatalf("expected no output for failed notification, got %q", got)
	}
	if got := p.Handle(context.Background(), []byte(`[{"jsonrpc":"2.0","method":"a"},{"jsonrpc":"2.0","id":4,"method":"b"}]`)); len(got) != 1 {
		t.Fatalf("expected an error reply for a batch with requests, got %q", got)
	}
}

func TestRunRelaysLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.ID) == 0 {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":{"method":"` + req.Method + `"}}`))
	}))
	t.Cleanup(srv.Close)

	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		``,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
	}, "\n"))
	var out bytes.Buffer
	p := newTestProxy(t, srv.URL, Options{})
	if err := p.Run(context.Background(), in, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 output lines, got %d: %q", len(lines), out.String())
	}
	if !strings.Contains(lines[1], `"tools/list"`) {
		t.Fatalf("unexpected second line %s", lines[1])
	}
}

type greetInput struct {
	Name string `json:"name"`
}

type greetOutput struct {
	Greeting string `json:"greeting"`
}

func TestRunAgainstStreamableServer(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{Name: "upstream", Version: "v1"}, nil)
	mcp.AddTool(server, &mcp.Tool{Name: "greet", Description: "Greet someone"},
		func(_ context.Context, _ *mcp.CallToolRequest, in greetInput) (*mcp.CallToolResult, greetOutput, error) {
			return nil, greetOutput{Greeting: "hello " + in.Name}, nil
		})
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"stdio-client","version":"0"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized","params":{}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list","params":{}}`,
	}, "\n"))
	var out bytes.Buffer
	p := newTestProxy(t, srv.URL, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Run(ctx, in, &out); err != nil {
		t.Fatalf("run: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected initialize and tools/list replies, got %q", out.String())
	}
	first := decodeReply(t, []byte(lines[0]))
	if first.Error != nil || !strings.Contains(string(first.Result), `"upstream"`) {
		t.Fatalf("unexpected initialize reply %s", lines[0])
	}
	second := decodeReply(t, []byte(lines[1]))
	if second.Error != nil || !strings.Contains(string(second.Result), `"greet"`) {
		t.Fatalf("unexpected tools/list reply %s", lines[1])
	}
}
