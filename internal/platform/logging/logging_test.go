package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesFileAndFiltersConsole(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	logger, err := New(Options{Dir: dir, File: "test_server.log", Name: "TestServer", Console: &console})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })

	logger.Info().Msg("info entry")
	logger.Error().Msg("error entry")

	data, err := os.ReadFile(filepath.Join(dir, "test_server.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "info entry") || !strings.Contains(string(data), "error entry") {
		t.Fatalf("expected both entries in file, got %s", data)
	}
	if !strings.Contains(string(data), `"logger":"TestServer"`) {
		t.Fatalf("expected logger field, got %s", data)
	}
	if strings.Contains(console.String(), "info entry") {
		t.Fatalf("console should not receive info entries: %q", console.String())
	}
	if !strings.Contains(console.String(), "error entry") {
		t.Fatalf("console should receive error entries: %q", console.String())
	}
	if logger.Path() != filepath.Join(dir, "test_server.log") {
		t.Fatalf("unexpected path %q", logger.Path())
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatal("expected level parse error")
	}
}

func TestStartupMasksSecrets(t *testing.T) {
	var console bytes.Buffer
	logger, err := New(Options{Console: &console, ConsoleLevel: "info"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	Startup(logger, "Jira Server", Setting{Key: "API Token", Value: "abc123"}, Setting{Key: "Base URL", Value: "https://example.atlassian.net"})
	Shutdown(logger, "Jira Server")

	out := console.String()
	if strings.Contains(out, "abc123") {
		t.Fatalf("secret leaked into banner: %s", out)
	}
	for _, want := range []string{rule, "Jira Server Starting", "API Token: ********", "Base URL: https://example.atlassian.net", "Jira Server Shutting Down"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in banner output", want)
		}
	}
}

func TestServerLogFile(t *testing.T) {
	tests := map[string]string{
		"goal-agent":   "goal_agent_server.log",
		"github":       "github_server.log",
		"file-server":  "file_server.log",
		"memory-cache": "memory_cache_server.log",
	}
	for key, want := range tests {
		if got := ServerLogFile(key); got != want {
			t.Fatalf("ServerLogFile(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestNopCloses(t *testing.T) {
	l := Nop()
	l.Info().Msg("dropped")
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
