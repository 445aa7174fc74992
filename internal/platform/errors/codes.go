// Package errors provides the structured error taxonomy shared by the MCP
// servers, the dashboard and the proxy.
package errors

import "net/http"

// Code is a machine-readable error type reported to clients.
type Code string

const (
	CodeTimeout       Code = "timeout"
	CodeConnection    Code = "connection"
	CodeHTTP          Code = "http_error"
	CodeValidation    Code = "validation_error"
	CodeNotFound      Code = "not_found"
	CodePermission    Code = "permission_denied"
	CodeNotConfigured Code = "not_configured"
	CodeJSON          Code = "json_error"
	CodeConflict      Code = "conflict"
	CodeUnexpected    Code = "unexpected"
)

// Suggestion returns the default remediation hint for the code.
func (c Code) Suggestion() string {
	switch c {
	case CodeTimeout:
		return "The upstream service took too long to respond. Retry, or narrow the request."
	case CodeConnection:
		return "Could not reach the upstream service. Check the URL and network connectivity."
	case CodeValidation:
		return "Check the argument values and formats, then retry."
	case CodeNotFound:
		return "Verify the identifier or path exists."
	case CodePermission:
		return "Check that the process or credentials have access to the resource."
	case CodeNotConfigured:
		return "Set the required environment variables and restart the server."
	case CodeJSON:
		return "Provide valid JSON for the argument."
	case CodeConflict:
		return "The resource changed or already exists. Fetch the latest state and retry."
	case CodeHTTP:
		return "The upstream API rejected the request. Inspect the error message."
	default:
		return "Check the server logs for details."
	}
}

// HTTPStatus maps the code to the status used by the dashboard API.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation, CodeJSON:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodePermission:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	case CodeNotConfigured, CodeConnection:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeHTTP:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// statusSuggestion gives a hint tailored to an upstream HTTP status.
func statusSuggestion(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return "Authentication failed. Check the API token or credentials."
	case status == http.StatusForbidden:
		return "The credentials lack permission for this operation."
	case status == http.StatusNotFound:
		return "The requested resource was not found. Verify identifiers."
	case status == http.StatusTooManyRequests:
		return "Rate limited by the upstream API. Wait before retrying."
	case status >= 500:
		return "The upstream service failed. Retry later."
	default:
		return CodeHTTP.Suggestion()
	}
}
