package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpsuite/mcpsuite/internal/platform/timeouts"
)

var listenTCP = net.Listen

const (
	// defaultRequestTimeout bounds reading a request. Responses are not
	// bounded because GET /mcp streams server notifications.
	defaultRequestTimeout = 30 * time.Second

	// defaultShutdownTimeout is longer than defaultRequestTimeout so in-flight
	// requests can complete.
	defaultShutdownTimeout = 35 * time.Second

	// defaultSessionTimeout closes idle streamable sessions.
	defaultSessionTimeout = time.Hour
)

// HTTPOptions configures the HTTP transport guards.
type HTTPOptions struct {
	// AllowedHosts extends the loopback hosts accepted in Host and Origin.
	AllowedHosts []string
	// AuthToken, when set, is required as a bearer token on /mcp.
	AuthToken string
}

// HTTPTransport serves one MCP server over the streamable HTTP transport.
type HTTPTransport struct {
	addr         string
	allowedHosts map[string]struct{}
	authToken    string
	server       *Server
	handler      http.Handler
	httpServer   *http.Server
	ready        chan net.Addr
}

// NewHTTPTransport creates a transport bound to addr. An empty address
// means localhost:8085.
func NewHTTPTransport(addr string, server *Server, opts HTTPOptions) *HTTPTransport {
	if strings.TrimSpace(addr) == "" {
		addr = "localhost:8085"
	}
	t := &HTTPTransport{
		addr:         addr,
		allowedHosts: parseAllowedHosts(opts.AllowedHosts),
		authToken:    strings.TrimSpace(opts.AuthToken),
		server:       server,
		ready:        make(chan net.Addr, 1),
	}
	t.handler = t.routes()
	return t
}

func (t *HTTPTransport) routes() http.Handler {
	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return t.server.mcpServer
	}, &mcp.StreamableHTTPOptions{SessionTimeout: defaultSessionTimeout})

	mux := http.NewServeMux()
	mux.HandleFunc("/mcp/health", t.handleHealth)
	mux.Handle("/mcp", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := t.validateLocalRequest(r); err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		if !t.authorizeRequest(w, r) {
			return
		}
		streamable.ServeHTTP(w, r)
	}))
	return mux
}

// Handler returns the transport's HTTP handler.
func (t *HTTPTransport) Handler() http.Handler {
	return t.handler
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (t *HTTPTransport) Start(ctx context.Context) error {
	t.httpServer = &http.Server{
		Addr:              t.addr,
		Handler:           t.handler,
		ReadHeaderTimeout: timeouts.ReadHeader,
		ReadTimeout:       defaultRequestTimeout,
	}

	listener, err := listenTCP("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", t.addr, err)
	}
	t.server.logger.Info().Str("addr", listener.Addr().String()).Msg("starting MCP HTTP server")
	t.ready <- listener.Addr()

	errChan := make(chan error, 1)
	go func() {
		if err := t.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		t.server.logger.Info().Msg("shutting down MCP HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := t.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown HTTP server: %w", err)
		}
		return nil
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		return fmt.Errorf("HTTP server error: %w", err)
	}
}

// Ready yields the bound address once the listener is open.
func (t *HTTPTransport) Ready() <-chan net.Addr {
	return t.ready
}

// handleHealth handles GET /mcp/health.
func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := t.validateLocalRequest(r); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"server": string(t.server.info.Kind),
	})
}

// authorizeRequest enforces the bearer token when one is configured.
func (t *HTTPTransport) authorizeRequest(w http.ResponseWriter, r *http.Request) bool {
	if t.authToken == "" {
		return true
	}
	header := r.Header.Get("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if !strings.HasPrefix(header, "Bearer ") || token == "" {
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "authorization required", http.StatusUnauthorized)
		return false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(t.authToken)) != 1 {
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "invalid access token", http.StatusUnauthorized)
		return false
	}
	return true
}

// validateLocalRequest checks Host and Origin against the allowed hosts to
// mitigate DNS rebinding.
func (t *HTTPTransport) validateLocalRequest(r *http.Request) error {
	if r == nil {
		return fmt.Errorf("invalid request")
	}
	if !t.isAllowedHostHeader(r.Host) {
		return fmt.Errorf("invalid host")
	}

	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return nil
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("invalid origin")
	}
	if !t.isAllowedHostHeader(parsed.Host) {
		return fmt.Errorf("invalid origin")
	}
	return nil
}

// isAllowedHostHeader reports whether a Host/Origin header resolves to an
// allowed host. Loopback is always allowed.
func (t *HTTPTransport) isAllowedHostHeader(host string) bool {
	resolved, ok := normalizeHost(host)
	if !ok {
		return false
	}
	if isLoopbackHost(resolved) {
		return true
	}
	_, ok = t.allowedHosts[strings.ToLower(resolved)]
	return ok
}

func isLoopbackHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

func parseAllowedHosts(hosts []string) map[string]struct{} {
	result := make(map[string]struct{}, len(hosts))
	for _, entry := range hosts {
		trimmed := strings.TrimSpace(entry)
		if trimmed == "" {
			continue
		}
		result[strings.ToLower(trimmed)] = struct{}{}
	}
	return result
}

// normalizeHost extracts the hostname portion from Host/Origin headers.
func normalizeHost(host string) (string, bool) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", false
	}

	if strings.HasPrefix(host, "[") {
		if splitHost, _, err := net.SplitHostPort(host); err == nil {
			return splitHost, true
		}
		if strings.HasSuffix(host, "]") {
			return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]"), true
		}
		return "", false
	}

	if strings.Count(host, ":") > 1 {
		return host, true
	}

	if strings.Contains(host, ":") {
		splitHost, _, err := net.SplitHostPort(host)
		if err != nil {
			return "", false
		}
		return splitHost, true
	}

	return host, true
}
