package errors

import stderrors "errors"

// Payload is the failure shape returned to MCP clients and dashboard
// callers.
type Payload struct {
	Success    bool           `json:"success"`
	Error      string         `json:"error"`
	Type       Code           `json:"type"`
	Suggestion string         `json:"suggestion,omitempty"`
	StatusCode int            `json:"status_code,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// Success is the envelope for successful payload-style responses.
type Success struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

// ToPayload converts any error into a client-facing payload.
func ToPayload(err error) Payload {
	if err == nil {
		return Payload{Type: CodeUnexpected, Error: "unknown error"}
	}
	code := CodeOf(err)
	p := Payload{
		Error:      err.Error(),
		Type:       code,
		Suggestion: code.Suggestion(),
	}
	if status := StatusOf(err); status != 0 {
		p.StatusCode = status
		p.Suggestion = statusSuggestion(status)
	}
	var domainErr *Error
	if stderrors.As(err, &domainErr) && len(domainErr.Metadata) > 0 {
		p.Context = domainErr.Metadata
	}
	return p
}

// OK wraps data in a success envelope.
func OK(data any, message string) Success {
	return Success{Success: true, Data: data, Message: message}
}
