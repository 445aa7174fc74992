package domain

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
	"github.com/mcpsuite/mcpsuite/internal/platform/logging"
	"github.com/mcpsuite/mcpsuite/internal/platform/otel"
)

// ResourceUpdateNotifier pushes resources/updated notifications for a URI.
type ResourceUpdateNotifier func(ctx context.Context, uri string)

// NotifyResourceUpdates sends one notification per non-empty URI.
func NotifyResourceUpdates(ctx context.Context, notify ResourceUpdateNotifier, uris ...string) {
	if notify == nil {
		return
	}
	for _, uri := range uris {
		if strings.TrimSpace(uri) == "" {
			continue
		}
		notify(ctx, uri)
	}
}

// ToolRegistration binds a tool definition to its typed handler.
type ToolRegistration struct {
	Tool *mcp.Tool
	add  func(*mcp.Server, *mcp.Tool)
}

// Tool captures a typed handler. Errors returned by the handler are
// reported to the client as a JSON failure payload in an IsError result.
func Tool[I, O any](tool *mcp.Tool, handler mcp.ToolHandlerFor[I, O]) ToolRegistration {
	return ToolRegistration{
		Tool: tool,
		add: func(server *mcp.Server, tool *mcp.Tool) {
			mcp.AddTool(server, tool, wrapHandler(tool.Name, handler))
		},
	}
}

// Register adds the tool to server.
func (r ToolRegistration) Register(server *mcp.Server) error {
	if server == nil {
		return fmt.Errorf("mcp server is required")
	}
	if r.Tool == nil || r.add == nil {
		return fmt.Errorf("tool registration is incomplete")
	}
	r.add(server, r.Tool)
	return nil
}

func wrapHandler[I, O any](name string, handler mcp.ToolHandlerFor[I, O]) mcp.ToolHandlerFor[I, O] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input I) (*mcp.CallToolResult, O, error) {
		ctx, finish := otel.StartSpan(ctx, "mcp.tool/"+name, attribute.String("mcp.tool.name", name))
		res, out, err := handler(ctx, req, input)
		finish(err)
		if err != nil {
			var zero O
			return nil, zero, NewToolError(err)
		}
		return res, out, nil
	}
}

// ResourceRegistration binds a static resource or a resource template to
// its read handler. Exactly one of Resource and Template is set.
type ResourceRegistration struct {
	Resource *mcp.Resource
	Template *mcp.ResourceTemplate
	Handler  mcp.ResourceHandler
}

// Register adds the resource to server.
func (r ResourceRegistration) Register(server *mcp.Server) error {
	switch {
	case r.Handler == nil:
		return fmt.Errorf("resource handler is required")
	case r.Resource != nil:
		server.AddResource(r.Resource, r.Handler)
	case r.Template != nil:
		server.AddResourceTemplate(r.Template, r.Handler)
	default:
		return fmt.Errorf("resource or template is required")
	}
	return nil
}

// URI reports the resource URI or template.
func (r ResourceRegistration) URI() string {
	if r.Resource != nil {
		return r.Resource.URI
	}
	if r.Template != nil {
		return r.Template.URITemplate
	}
	return ""
}

// Module is everything one MCP server contributes.
type Module struct {
	// Name is the display name, e.g. "GitHub".
	Name      string
	Tools     []ToolRegistration
	Resources []ResourceRegistration
	// Settings are shown, masked, in the startup banner.
	Settings []logging.Setting
	// ConfigErr is set when required configuration is missing. The server
	// still starts and its tools report not_configured.
	ConfigErr error
	// Health probes the server's upstream dependency. Optional.
	Health func(context.Context) error
	// Close releases clients and stores. Optional.
	Close func() error
}

// Deps are the shared dependencies handed to module builders.
type Deps struct {
	Logger *logging.Logger
	Notify ResourceUpdateNotifier
}

// NotConfigured returns the error used by tools whose client is missing.
func NotConfigured(service string, cause error) error {
	e := apperrors.NotConfigured(service)
	if cause != nil {
		e.Metadata = map[string]any{"detail": cause.Error()}
	}
	return e
}
