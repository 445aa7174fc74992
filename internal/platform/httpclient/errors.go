package httpclient

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// StatusError is a non-2xx response.
type StatusError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d - %s", e.Status, e.Message)
}

// StatusCode reports the HTTP status.
func (e *StatusError) StatusCode() int {
	return e.Status
}

func newStatusError(resp *Response) *StatusError {
	return &StatusError{Status: resp.StatusCode, Message: ErrorMessage(resp.Body), Body: resp.Body}
}

// ErrorMessage extracts a readable message from an error body. It looks for
// error.message, error, message, then Jira's errorMessages and errors maps,
// and falls back to the first 500 characters of the body.
func ErrorMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		if v, ok := payload["error"]; ok {
			switch e := v.(type) {
			case map[string]any:
				if msg, ok := e["message"].(string); ok && msg != "" {
					return msg
				}
				data, _ := json.Marshal(e)
				return string(data)
			case string:
				if e != "" {
					return e
				}
			}
		}
		if msg, ok := payload["message"].(string); ok && msg != "" {
			return msg
		}
		if msgs, ok := payload["errorMessages"].([]any); ok && len(msgs) > 0 {
			parts := make([]string, 0, len(msgs))
			for _, m := range msgs {
				parts = append(parts, fmt.Sprint(m))
			}
			return strings.Join(parts, "; ")
		}
		if fields, ok := payload["errors"].(map[string]any); ok && len(fields) > 0 {
			parts := make([]string, 0, len(fields))
			for k, v := range fields {
				parts = append(parts, fmt.Sprintf("%s: %v", k, v))
			}
			sort.Strings(parts)
			return strings.Join(parts, "; ")
		}
		if exc, ok := payload["exception"].(string); ok && exc != "" {
			return exc
		}
	}
	text := strings.TrimSpace(string(body))
	if utf8.RuneCountInString(text) > errorTextLimit {
		text = string([]rune(text)[:errorTextLimit])
	}
	return text
}
