package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
)

// ToolError carries a failure payload. Its Error text is the JSON payload,
// which the SDK places in the IsError result content.
type ToolError struct {
	Payload apperrors.Payload
	cause   error
}

// NewToolError classifies err into a payload.
func NewToolError(err error) *ToolError {
	return &ToolError{Payload: apperrors.ToPayload(err), cause: err}
}

func (e *ToolError) Error() string {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return e.Payload.Error
	}
	return string(data)
}

func (e *ToolError) Unwrap() error {
	return e.cause
}

// TextResult returns a result whose content is a single text block. The
// structured output is still attached by the SDK.
func TextResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}

// JSONResource renders payload as a single application/json resource
// content block.
func JSONResource(uri string, payload any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal resource %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: uri, MIMEType: "application/json", Text: string(data)},
		},
	}, nil
}

// ResourceURI extracts the requested URI.
func ResourceURI(req *mcp.ReadResourceRequest) (string, error) {
	if req == nil || req.Params == nil || strings.TrimSpace(req.Params.URI) == "" {
		return "", fmt.Errorf("resource uri is required")
	}
	return req.Params.URI, nil
}
