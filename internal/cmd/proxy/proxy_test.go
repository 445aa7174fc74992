package proxy

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MCPSUITE_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	for _, key := range []string{
		"MCPSUITE_PROXY_URL", "MCPSUITE_MCP_HTTP_TOKEN", "MCPSUITE_PROXY_TIMEOUT",
		"MCPSUITE_PROXY_LOG_DIR", "MCPSUITE_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestParseConfigPositionalURL(t *testing.T) {
	isolateEnv(t)
	fs := flag.NewFlagSet("mcp-http-proxy", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-token", "abc", "https://goal-agent.example.com"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.BaseURL != "https://goal-agent.example.com" {
		t.Fatalf("unexpected base url %q", cfg.BaseURL)
	}
	if cfg.Token != "abc" {
		t.Fatalf("expected token flag, got %q", cfg.Token)
	}
	if cfg.Timeout != 60*time.Second {
		t.Fatalf("expected 60s timeout, got %v", cfg.Timeout)
	}
	if cfg.LogDir != os.TempDir() {
		t.Fatalf("expected temp log dir, got %q", cfg.LogDir)
	}
}

func TestParseConfigFromEnv(t *testing.T) {
	isolateEnv(t)
	t.Setenv("MCPSUITE_PROXY_URL", "http://localhost:8101")
	t.Setenv("MCPSUITE_PROXY_TIMEOUT", "5s")
	cfg, err := ParseConfig(flag.NewFlagSet("mcp-http-proxy", flag.ContinueOnError), nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.BaseURL != "http://localhost:8101" || cfg.Timeout != 5*time.Second {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestParseConfigRejectsBadURL(t *testing.T) {
	isolateEnv(t)
	if _, err := ParseConfig(flag.NewFlagSet("p", flag.ContinueOnError), nil); !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if _, err := ParseConfig(flag.NewFlagSet("p", flag.ContinueOnError), []string{"goal-agent.example.com"}); err == nil {
		t.Fatal("expected scheme error")
	}
}
