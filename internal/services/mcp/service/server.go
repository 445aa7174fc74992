package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpsuite/mcpsuite/internal/platform/logging"
	"github.com/mcpsuite/mcpsuite/internal/services/bash"
	"github.com/mcpsuite/mcpsuite/internal/services/cache"
	"github.com/mcpsuite/mcpsuite/internal/services/files"
	"github.com/mcpsuite/mcpsuite/internal/services/frappe"
	githubserver "github.com/mcpsuite/mcpsuite/internal/services/github"
	"github.com/mcpsuite/mcpsuite/internal/services/goalagent"
	"github.com/mcpsuite/mcpsuite/internal/services/internet"
	"github.com/mcpsuite/mcpsuite/internal/services/jira"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/catalog"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/domain"
)

// serverVersion identifies the MCP server version.
const serverVersion = "1.0.0"

// ModuleBuilder constructs the tools and resources for one server kind.
type ModuleBuilder func(context.Context, domain.Deps) domain.Module

var moduleBuilders = map[catalog.Kind]ModuleBuilder{
	catalog.KindGitHub:      githubserver.Module,
	catalog.KindJira:        jira.Module,
	catalog.KindFiles:       files.Module,
	catalog.KindBash:        bash.Module,
	catalog.KindInternet:    internet.Module,
	catalog.KindMemoryCache: cache.Module,
	catalog.KindFrappe:      frappe.Module,
	catalog.KindGoalAgent:   goalagent.Module,
}

// TransportKind identifies the MCP transport implementation.
type TransportKind string

const (
	// TransportStdio uses standard input/output for MCP.
	TransportStdio TransportKind = "stdio"
	// TransportHTTP serves the streamable HTTP transport.
	TransportHTTP TransportKind = "http"
)

// Config configures the MCP server.
type Config struct {
	Server       string        `env:"MCPSUITE_MCP_SERVER"`
	Transport    TransportKind `env:"MCPSUITE_MCP_TRANSPORT"     envDefault:"stdio"`
	HTTPAddr     string        `env:"MCPSUITE_MCP_HTTP_ADDR"     envDefault:"localhost:8085"`
	AllowedHosts []string      `env:"MCPSUITE_MCP_ALLOWED_HOSTS" envSeparator:","`
	AuthToken    string        `env:"MCPSUITE_MCP_HTTP_TOKEN"`
	LogDir       string        `env:"MCPSUITE_LOG_DIR"           envDefault:"logs"`
	LogLevel     string        `env:"MCPSUITE_LOG_LEVEL"         envDefault:"info"`
}

// Server hosts one MCP server and the resources its module holds.
type Server struct {
	info      catalog.Server
	mcpServer *mcp.Server
	module    domain.Module
	logger    *logging.Logger

	resourceURIs []string
	templates    []string

	healthMu   sync.Mutex
	lastHealth string
	closeOnce  sync.Once
	closeErr   error
}

// New builds the server selected by kind, with its tools and resources
// registered.
func New(ctx context.Context, kind string, logger *logging.Logger) (*Server, error) {
	info, ok := catalog.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("unknown server %q (known: %s)", kind, strings.Join(catalog.Keys(), ", "))
	}
	build, ok := moduleBuilders[info.Kind]
	if !ok {
		return nil, fmt.Errorf("server %q has no module", info.Kind)
	}
	return newServer(ctx, info, build, logger)
}

func newServer(ctx context.Context, info catalog.Server, build ModuleBuilder, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Server{info: info, logger: logger}
	s.mcpServer = mcp.NewServer(&mcp.Implementation{Name: info.Name, Version: serverVersion}, &mcp.ServerOptions{
		CompletionHandler:  completionHandler,
		SubscribeHandler:   s.resourceSubscribeHandler,
		UnsubscribeHandler: s.resourceUnsubscribeHandler,
	})
	s.mcpServer.AddReceivingMiddleware(loggingMiddleware(logger))

	notify := func(ctx context.Context, uri string) {
		if ctx == nil {
			ctx = context.Background()
		}
		if err := s.mcpServer.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{URI: uri}); err != nil {
			logger.Warn().Err(err).Str("uri", uri).Msg("resource updated notify failed")
		}
	}

	s.module = build(ctx, domain.Deps{Logger: logger, Notify: notify})
	for _, tool := range s.module.Tools {
		if err := tool.Register(s.mcpServer); err != nil {
			return nil, fmt.Errorf("register %s tool: %w", info.Kind, err)
		}
	}
	for _, res := range s.module.Resources {
		if err := res.Register(s.mcpServer); err != nil {
			return nil, fmt.Errorf("register %s resource: %w", info.Kind, err)
		}
		if res.Resource != nil {
			s.resourceURIs = append(s.resourceURIs, res.Resource.URI)
		} else if res.Template != nil {
			s.templates = append(s.templates, res.Template.URITemplate)
		}
	}
	return s, nil
}

// Info describes the running server.
func (s *Server) Info() catalog.Server {
	return s.info
}

// MCPServer exposes the underlying protocol server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// Module returns the module the server was built from.
func (s *Server) Module() domain.Module {
	return s.module
}

// completionHandler handles completion/complete requests with empty results.
func completionHandler(context.Context, *mcp.CompleteRequest) (*mcp.CompleteResult, error) {
	return &mcp.CompleteResult{
		Completion: mcp.CompletionResultDetails{
			Values: []string{},
		},
	}, nil
}

func (s *Server) resourceSubscribeHandler(_ context.Context, req *mcp.SubscribeRequest) error {
	if req == nil || req.Params == nil {
		return fmt.Errorf("resource uri is required")
	}
	return s.validateResourceURI(req.Params.URI)
}

func (s *Server) resourceUnsubscribeHandler(_ context.Context, req *mcp.UnsubscribeRequest) error {
	if req == nil || req.Params == nil {
		return fmt.Errorf("resource uri is required")
	}
	return s.validateResourceURI(req.Params.URI)
}

// validateResourceURI accepts registered resource URIs and URIs that fill
// a registered template.
func (s *Server) validateResourceURI(uri string) error {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return fmt.Errorf("resource uri is required")
	}
	for _, known := range s.resourceURIs {
		if uri == known {
			return nil
		}
	}
	for _, tmpl := range s.templates {
		if matchesTemplate(tmpl, uri) {
			return nil
		}
	}
	return fmt.Errorf("unknown resource %q", uri)
}

// matchesTemplate reports whether uri has the literal prefix of tmpl and a
// non-empty value where the first variable sits.
func matchesTemplate(tmpl, uri string) bool {
	idx := strings.Index(tmpl, "{")
	if idx < 0 {
		return tmpl == uri
	}
	prefix := tmpl[:idx]
	return strings.HasPrefix(uri, prefix) && len(uri) > len(prefix)
}

// loggingMiddleware logs each incoming request with its duration. Tool
// failures are logged at warn level.
func loggingMiddleware(logger *logging.Logger) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			start := time.Now()
			res, err := next(ctx, method, req)

			event := logger.Debug()
			if err != nil {
				event = logger.Error().Err(err)
			} else if call, ok := res.(*mcp.CallToolResult); ok && call.IsError {
				event = logger.Warn()
			}
			if call, ok := req.(*mcp.CallToolRequest); ok && call.Params != nil {
				event = event.Str("tool", call.Params.Name)
			}
			event.Str("method", method).Dur("duration", time.Since(start)).Msg("mcp request")
			return res, err
		}
	}
}
