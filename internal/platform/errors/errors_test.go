package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"reflect"
	"testing"
)

type statusErr struct{ status int }

func (e statusErr) Error() string   { return fmt.Sprintf("%d - upstream", e.status) }
func (e statusErr) StatusCode() int { return e.status }

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "nil", err: nil, want: ""},
		{name: "domain", err: Validation("bad %s", "input"), want: CodeValidation},
		{name: "wrapped domain", err: fmt.Errorf("outer: %w", NotFound("x")), want: CodeNotFound},
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: CodeTimeout},
		{name: "status", err: statusErr{status: 404}, want: CodeHTTP},
		{name: "dial", err: &net.OpError{Op: "dial", Err: stderrors.New("refused")}, want: CodeConnection},
		{name: "missing file", err: &os.PathError{Op: "open", Path: "x", Err: os.ErrNotExist}, want: CodeNotFound},
		{name: "permission", err: &os.PathError{Op: "open", Path: "x", Err: os.ErrPermission}, want: CodePermission},
		{name: "other", err: stderrors.New("boom"), want: CodeUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Fatalf("CodeOf = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", New(CodeNotFound, "goal GOAL-0001 not found"))
	if !stderrors.Is(err, &Error{Code: CodeNotFound}) {
		t.Fatal("expected code match")
	}
	if stderrors.Is(err, &Error{Code: CodeValidation}) {
		t.Fatal("unexpected code match")
	}
}

func TestToPayload(t *testing.T) {
	t.Run("domain metadata", func(t *testing.T) {
		p := ToPayload(WithMetadata(CodeValidation, "bad", map[string]any{"field": "priority"}))
		if p.Success || p.Type != CodeValidation || p.Error != "bad" {
			t.Fatalf("unexpected payload %+v", p)
		}
		if p.Context["field"] != "priority" {
			t.Fatalf("expected context field, got %+v", p.Context)
		}
		if p.Suggestion == "" {
			t.Fatal("expected suggestion")
		}
	})
	t.Run("http status", func(t *testing.T) {
		p := ToPayload(statusErr{status: 401})
		if p.Type != CodeHTTP || p.StatusCode != 401 {
			t.Fatalf("unexpected payload %+v", p)
		}
		if p.Suggestion != statusSuggestion(401) {
			t.Fatalf("expected credential suggestion, got %q", p.Suggestion)
		}
	})
	t.Run("not configured", func(t *testing.T) {
		p := ToPayload(NotConfigured("Frappe", "FRAPPE_API_KEY"))
		if p.Error != "Frappe client not initialized" || p.Type != CodeNotConfigured {
			t.Fatalf("unexpected payload %+v", p)
		}
	})
}

func TestHTTPStatus(t *testing.T) {
	if CodeValidation.HTTPStatus() != 400 || CodeNotFound.HTTPStatus() != 404 || CodeUnexpected.HTTPStatus() != 500 {
		t.Fatal("unexpected status mapping")
	}
}

func TestSimilarLines(t *testing.T) {
	content := "func main() {\n\tfmt.Println(\"hello world\")\n}\nreturn nil\nfmt.Println(\"hello  world\") // x"
	got := SimilarLines(content, `fmt.Println("hello world")`)
	want := []string{`fmt.Println("hello world")`}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SimilarLines = %q, want %q", got, want)
	}
	if SimilarLines(content, "   ") != nil {
		t.Fatal("blank target should have no matches")
	}
}

func TestSimilarLinesCapsAtFive(t *testing.T) {
	content := ""
	for i := 0; i < 8; i++ {
		content += "alpha beta gamma\n"
	}
	if got := SimilarLines(content, "alpha beta gamma"); len(got) != 5 {
		t.Fatalf("expected 5 matches, got %d", len(got))
	}
}
