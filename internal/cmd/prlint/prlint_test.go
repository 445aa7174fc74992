package prlint

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mcpsuite/mcpsuite/internal/services/prtemplate"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MCPSUITE_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("MCPSUITE_PR_TEMPLATE", "")
}

func TestParseConfigFileFlag(t *testing.T) {
	isolateEnv(t)
	cfg, err := ParseConfig(flag.NewFlagSet("prlint", flag.ContinueOnError), []string{"-file", "docs/pr.md"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.File != "docs/pr.md" {
		t.Fatalf("expected file flag, got %q", cfg.File)
	}
}

func TestRunEmbeddedTemplate(t *testing.T) {
	var out bytes.Buffer
	if err := Run(context.Background(), Config{}, &out); err != nil {
		t.Fatalf("run: %v\n%s", err, out.String())
	}
	if out.String() != "embedded template: ok\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRunReportsProblems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pull_request_template.md")
	src := strings.Replace(string(prtemplate.Template()), "- [ ] Jira Server", "- [x] Jira Server", 1)
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}

	var out bytes.Buffer
	err := Run(context.Background(), Config{File: path}, &out)
	if !errors.Is(err, ErrProblems) {
		t.Fatalf("expected ErrProblems, got %v", err)
	}
	if !strings.Contains(out.String(), `[checkbox] checkbox "Jira Server" is checked`) {
		t.Fatalf("missing problem in output:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "1 problem(s)") {
		t.Fatalf("missing summary in output:\n%s", out.String())
	}
}

func TestRunMissingFile(t *testing.T) {
	err := Run(context.Background(), Config{File: filepath.Join(t.TempDir(), "nope.md")}, &bytes.Buffer{})
	if err == nil || errors.Is(err, ErrProblems) {
		t.Fatalf("expected read error, got %v", err)
	}
}
