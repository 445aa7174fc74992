package mcpctl

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpsuite/mcpsuite/internal/services/dashboard"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/catalog"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/procs"
)

const fakeMCPEnv = "MCPCTL_FAKE_MCP"

// TestMain doubles as a fake mcp binary: with MCPCTL_FAKE_MCP=1 the test
// binary serves one tool on stdio, and exits early for -server=jira.
func TestMain(m *testing.M) {
	if os.Getenv(fakeMCPEnv) == "1" {
		os.Exit(runFakeMCP(os.Args[1:]))
	}
	color.NoColor = true
	os.Exit(m.Run())
}

type echoInput struct {
	Text string `json:"text"`
}

type echoOutput struct {
	Text string `json:"text"`
}

func runFakeMCP(args []string) int {
	for _, arg := range args {
		if arg == "-server=jira" {
			return 3
		}
	}
	server := mcp.NewServer(&mcp.Implementation{Name: "fake", Version: "v0"}, nil)
	mcp.AddTool(server, &mcp.Tool{Name: "echo", Description: "Echo text"},
		func(_ context.Context, _ *mcp.CallToolRequest, in echoInput) (*mcp.CallToolResult, echoOutput, error) {
			return nil, echoOutput(in), nil
		})
	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		return 1
	}
	return 0
}

type fakeScan struct {
	list []procs.Process
}

func (f *fakeScan) scan(context.Context) ([]procs.Process, error) {
	return f.list, nil
}

func newTestApp(t *testing.T, env map[string]string, running ...procs.Process) *App {
	t.Helper()
	scan := &fakeScan{list: running}
	cfg := Config{
		ProjectRoot:     t.TempDir(),
		LogDir:          t.TempDir(),
		MCPBinary:       filepath.Join(t.TempDir(), "missing-mcp"),
		DashboardBinary: filepath.Join(t.TempDir(), "missing-dashboard"),
		DashboardAddr:   ":8000",
	}
	return &App{
		Config: cfg,
		Getenv: func(k string) string { return env[k] },
		Scan:   scan.scan,
		Controller: &procs.Controller{
			Launcher: procs.Launcher{Binary: cfg.MCPBinary, LogDir: cfg.LogDir},
			Scan:     scan.scan,
		},
		RedisUp: func(context.Context) bool { return false },
		Now:     time.Now,
		Grace:   100 * time.Millisecond,
	}
}

func execute(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(app)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func writeLog(t *testing.T, app *App, kind catalog.Kind, content string) {
	t.Helper()
	s, _ := catalog.Lookup(string(kind))
	if err := os.WriteFile(app.logPath(s), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, newTestApp(t, nil), "--version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if out != "mcpctl version 1.0.0\n" {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestStatusTable(t *testing.T) {
	app := newTestApp(t, nil, procs.Process{Kind: catalog.KindGitHub, PID: 4242, Uptime: 125, MemoryMB: 20.5, CPUPercent: 1.25})
	out, err := execute(t, app, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"GitHub Server", "4242", "2m 5s", "20.5 MB", "1 of 8 server(s) running"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Dependencies") {
		t.Fatalf("non-verbose status should not check dependencies:\n%s", out)
	}
}

func TestStatusVerbose(t *testing.T) {
	app := newTestApp(t, nil)
	writeLog(t, app, catalog.KindBash, strings.Repeat("x", 2048))
	out, err := execute(t, app, "status", "-v")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"bash_server.log (2.0 KB)", "jira_server.log (not created yet)", "Redis is not running", "No MCP servers currently running"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestLogs(t *testing.T) {
	app := newTestApp(t, nil)
	writeLog(t, app, catalog.KindGitHub, "first\nsecond\nthird\n")

	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
		err     bool
	}{
		{name: "tail", args: []string{"logs", "github", "-n", "2"}, want: []string{"second", "third"}, notWant: []string{"first"}},
		{name: "underscore key", args: []string{"logs", "github_server"}, want: []string{"first"}},
		{name: "missing server", args: []string{"logs"}, want: []string{"Please specify a server name or use --all", "goal-agent"}, err: true},
		{name: "unknown server", args: []string{"logs", "nope"}, want: []string{"Unknown server: nope"}, err: true},
		{name: "no file yet", args: []string{"logs", "jira"}, want: []string{"Log file not found"}, err: true},
		{name: "all", args: []string{"logs", "-a", "-n", "1"}, want: []string{"GitHub Server", "third", "Log file not found"}, notWant: []string{"second"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, app, tt.args...)
			if tt.err != (err != nil) {
				t.Fatalf("unexpected error %v:\n%s", err, out)
			}
			if err != nil && !errors.Is(err, errReported) {
				t.Fatalf("expected reported error, got %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Fatalf("expected %q in output:\n%s", want, out)
				}
			}
			for _, bad := range tt.notWant {
				if strings.Contains(out, bad) {
					t.Fatalf("unexpected %q in output:\n%s", bad, out)
				}
			}
		})
	}
}

func TestStartCheckOnly(t *testing.T) {
	app := newTestApp(t, map[string]string{"GITHUB_PERSONAL_ACCESS_TOKEN": "ghp_x"})
	app.Config.MCPBinary = os.Args[0]
	out, err := execute(t, app, "start", "--check-only")
	if err != nil {
		t.Fatalf("start: %v\n%s", err, out)
	}
	for _, want := range []string{"✓ GITHUB_PERSONAL_ACCESS_TOKEN", "✗ JIRA_API_TOKEN", "Redis: Not running", "--check-only mode"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestStartMissingBinary(t *testing.T) {
	out, err := execute(t, newTestApp(t, nil), "start")
	if !errors.Is(err, errReported) {
		t.Fatalf("expected reported error, got %v", err)
	}
	if !strings.Contains(out, "Cannot start servers") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestStopWithNothingRunning(t *testing.T) {
	out, err := execute(t, newTestApp(t, nil), "stop")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !strings.Contains(out, "No MCP server processes found running") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRestartUnknownServer(t *testing.T) {
	out, err := execute(t, newTestApp(t, nil), "restart", "nope")
	if !errors.Is(err, errReported) {
		t.Fatalf("expected reported error, got %v", err)
	}
	if !strings.Contains(out, "Unknown server: nope") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if _, err := execute(t, newTestApp(t, nil), "restart"); err == nil {
		t.Fatal("expected missing argument error")
	}
}

func TestRunFlagsAreExclusive(t *testing.T) {
	if _, err := execute(t, newTestApp(t, nil), "run", "--dashboard-only", "--servers-only"); err == nil {
		t.Fatal("expected mutually exclusive flag error")
	}
}

func TestDashboardMissingBinary(t *testing.T) {
	out, err := execute(t, newTestApp(t, nil), "dashboard")
	if !errors.Is(err, errReported) || !strings.Contains(out, "Dashboard binary not found") {
		t.Fatalf("unexpected result %v:\n%s", err, out)
	}
}

func TestConfigMasksValues(t *testing.T) {
	app := newTestApp(t, map[string]string{"JIRA_API_TOKEN": "secret-token-value"})
	out, err := execute(t, app, "config")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if strings.Contains(out, "secret-token-value") {
		t.Fatalf("config leaked a credential:\n%s", out)
	}
	for _, want := range []string{"JIRA_API_TOKEN: ***", "JIRA_EMAIL: not set", "HTTP Address: localhost:8101", "http://localhost:8000"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestDashboardURL(t *testing.T) {
	tests := map[string]string{
		":8000":          "http://localhost:8000",
		"0.0.0.0:9000":   "http://localhost:9000",
		"127.0.0.1:8000": "http://127.0.0.1:8000",
	}
	for addr, want := range tests {
		if got := (Config{DashboardAddr: addr}).DashboardURL(); got != want {
			t.Fatalf("DashboardURL(%q) = %q, want %q", addr, got, want)
		}
	}
}

func TestWSURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{in: "http://localhost:8000", want: "ws://localhost:8000/ws"},
		{in: "https://ops.example/dash/", want: "wss://ops.example/dash/ws"},
		{in: "ftp://x", err: true},
	}
	for _, tt := range tests {
		got, err := wsURL(tt.in)
		if tt.err != (err != nil) || got != tt.want {
			t.Fatalf("wsURL(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWatchOnce(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(dashboard.Message{Type: dashboard.MessagePing})
		snap := dashboard.Snapshot{}
		snap.Status.Servers = dashboard.ServerCounts{Total: 8, Running: 2, Stopped: 6}
		snap.Status.Redis.Connected = true
		snap.Status.Redis.TotalKeys = 4
		snap.Goals.Summary.TotalGoals = 3
		_ = conn.WriteJSON(dashboard.Message{Type: dashboard.MessageInitial, Data: &snap, Timestamp: "2026-03-04T09:30:00Z"})
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	out, err := execute(t, newTestApp(t, nil), "watch", "--url", srv.URL, "--once")
	if err != nil {
		t.Fatalf("watch: %v\n%s", err, out)
	}
	for _, want := range []string{"servers 2/8 running", "redis up (4 keys)", "goals 3", "initial"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestWatchWithoutDashboard(t *testing.T) {
	out, err := execute(t, newTestApp(t, nil), "watch", "--url", "http://127.0.0.1:1")
	if !errors.Is(err, errReported) || !strings.Contains(out, "Cannot connect to dashboard") {
		t.Fatalf("unexpected result %v:\n%s", err, out)
	}
}

func TestTestCommandProbesServers(t *testing.T) {
	t.Setenv(fakeMCPEnv, "1")
	app := newTestApp(t, nil)
	app.Config.MCPBinary = os.Args[0]

	out, err := execute(t, app, "test", "-v", "-t", "20")
	if !errors.Is(err, errReported) {
		t.Fatalf("expected the jira probe to fail, got %v:\n%s", err, out)
	}
	for _, want := range []string{"GitHub Server: 1 tools", "    - echo", "Jira Server: initialize", "Some tests failed (1 of 8)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}
