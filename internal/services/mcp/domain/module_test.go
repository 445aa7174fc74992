package domain

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
)

type echoInput struct {
	Text string `json:"text" jsonschema:"text to echo"`
}

type echoResult struct {
	Echo string `json:"echo"`
}

func connectTools(t *testing.T, regs ...ToolRegistration) *mcp.ClientSession {
	t.Helper()
	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "v0"}, nil)
	for _, reg := range regs {
		if err := reg.Register(server); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
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

func TestToolReportsStructuredOutput(t *testing.T) {
	reg := Tool(&mcp.Tool{Name: "echo", Description: "echo text"},
		func(_ context.Context, _ *mcp.CallToolRequest, in echoInput) (*mcp.CallToolResult, echoResult, error) {
			return nil, echoResult{Echo: in.Text}, nil
		})
	session := connectTools(t, reg)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: "echo", Arguments: map[string]any{"text": "hi"}})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %+v", res.Content)
	}
	data, _ := json.Marshal(res.StructuredContent)
	var out echoResult
	if err := json.Unmarshal(data, &out); err != nil || out.Echo != "hi" {
		t.Fatalf("unexpected structured content %s", data)
	}
}

func TestToolErrorsBecomePayloads(t *testing.T) {
	reg := Tool(&mcp.Tool{Name: "fail", Description: "always fails"},
		func(context.Context, *mcp.CallToolRequest, echoInput) (*mcp.CallToolResult, echoResult, error) {
			return nil, echoResult{}, apperrors.Validation("text is required")
		})
	session := connectTools(t, reg)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: "fail", Arguments: map[string]any{"text": ""}})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected IsError result")
	}
	text := res.Content[0].(*mcp.TextContent).Text
	var payload apperrors.Payload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		t.Fatalf("decode payload %q: %v", text, err)
	}
	if payload.Success || payload.Type != apperrors.CodeValidation || payload.Error != "text is required" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestToolErrorUnwraps(t *testing.T) {
	cause := apperrors.NotFound("missing")
	err := NewToolError(cause)
	if !errors.Is(err, &apperrors.Error{Code: apperrors.CodeNotFound}) {
		t.Fatal("expected tool error to unwrap to cause")
	}
}

func TestRegisterRejectsIncomplete(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "v0"}, nil)
	if err := (ToolRegistration{}).Register(server); err == nil {
		t.Fatal("expected incomplete tool error")
	}
	if err := (ResourceRegistration{Handler: func(context.Context, *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return nil, nil
	}}).Register(server); err == nil {
		t.Fatal("expected missing resource error")
	}
}

func TestNotifyResourceUpdatesSkipsBlank(t *testing.T) {
	var got []string
	NotifyResourceUpdates(context.Background(), func(_ context.Context, uri string) { got = append(got, uri) }, "goals://summary", " ", "goal://GOAL-0001")
	if want := []string{"goals://summary", "goal://GOAL-0001"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("notified %v, want %v", got, want)
	}
	NotifyResourceUpdates(context.Background(), nil, "ignored")
}

func TestArgs(t *testing.T) {
	if got := SplitList(" a, ,b ,"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("SplitList = %v", got)
	}
	var m map[string]any
	if err := DecodeJSONArg("data", `{"x":1}`, &m); err != nil || m["x"] != float64(1) {
		t.Fatalf("DecodeJSONArg = %v, %v", m, err)
	}
	if err := DecodeJSONArg("data", `{bad`, &m); apperrors.CodeOf(err) != apperrors.CodeJSON {
		t.Fatalf("expected json_error, got %v", err)
	}
	if err := DecodeJSONArg("data", "", &m); apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("expected validation_error, got %v", err)
	}
	if err := Require("a", "x", "b", " "); err == nil || err.Error() != "b is required" {
		t.Fatalf("Require = %v", err)
	}
	if Clamp(0, 10, 1, 10) != 10 || Clamp(50, 10, 1, 10) != 10 || Clamp(-1, 10, 1, 10) != 1 {
		t.Fatal("unexpected clamp")
	}
}
