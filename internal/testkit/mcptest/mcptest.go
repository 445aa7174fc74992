// Package mcptest connects in-memory MCP clients to server modules in tests.
package mcptest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/domain"
)

// Connect registers module on a fresh server and returns a connected client
// session. Both ends are closed when the test finishes.
func Connect(t testing.TB, module domain.Module) *mcp.ClientSession {
	t.Helper()
	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "v0"}, nil)
	for _, tool := range module.Tools {
		if err := tool.Register(server); err != nil {
			t.Fatalf("register tool: %v", err)
		}
	}
	for _, res := range module.Resources {
		if err := res.Register(server); err != nil {
			t.Fatalf("register resource: %v", err)
		}
	}
	return ConnectServer(t, server)
}

// ConnectServer connects a client to an already configured server.
func ConnectServer(t testing.TB, server *mcp.Server) *mcp.ClientSession {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

// Call invokes a tool and fails the test on protocol errors.
func Call(t testing.TB, session *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	return res
}

// Decode converts the structured output of a successful call into T.
func Decode[T any](t testing.TB, res *mcp.CallToolResult) T {
	t.Helper()
	var out T
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", Text(res))
	}
	data, err := json.Marshal(res.StructuredContent)
	if err != nil {
		t.Fatalf("marshal structured content: %v", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode structured content %s: %v", data, err)
	}
	return out
}

// Failure decodes the error payload of a failed call.
func Failure(t testing.TB, res *mcp.CallToolResult) apperrors.Payload {
	t.Helper()
	if !res.IsError {
		t.Fatalf("expected tool error, got %s", Text(res))
	}
	var payload apperrors.Payload
	if err := json.Unmarshal([]byte(Text(res)), &payload); err != nil {
		t.Fatalf("decode error payload %q: %v", Text(res), err)
	}
	return payload
}

// Text returns the first text content block.
func Text(res *mcp.CallToolResult) string {
	for _, c := range res.Content {
		if text, ok := c.(*mcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}
