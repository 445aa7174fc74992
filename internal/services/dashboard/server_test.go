package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpsuite/mcpsuite/internal/services/goalagent"
	"github.com/mcpsuite/mcpsuite/internal/services/goalagent/storage/sqlite"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/catalog"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/procs"
)

type fakeProcs struct {
	mu   sync.Mutex
	list []procs.Process
}

func (f *fakeProcs) set(list ...procs.Process) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.list = list
}

func (f *fakeProcs) scan(context.Context) ([]procs.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]procs.Process{}, f.list...), nil
}

type fakeControl struct {
	actions []string
}

func (f *fakeControl) Control(_ context.Context, action string) (procs.ControlResult, error) {
	f.actions = append(f.actions, action)
	return procs.ControlResult{Status: "success", Action: action, Results: map[string]string{"bash": "Already stopped"}}, nil
}

type fixture struct {
	server  *Server
	procs   *fakeProcs
	control *fakeControl
	redis   *miniredis.Miniredis
	logDir  string
	env     map[string]string
}

type option func(*Deps)

func withoutGoals(err error) option {
	return func(d *Deps) {
		d.Goals = nil
		d.GoalsErr = err
	}
}

func withoutRedis() option {
	return func(d *Deps) { d.Redis = nil }
}

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		procs:   &fakeProcs{},
		control: &fakeControl{},
		redis:   miniredis.RunT(t),
		logDir:  t.TempDir(),
		env:     map[string]string{},
	}
	rdb := redis.NewClient(&redis.Options{Addr: f.redis.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "goals.db"))
	require.NoError(t, err)
	agent := goalagent.New(store, goalagent.Options{Logger: zerolog.Nop(), StoreKind: "sqlite"})
	t.Cleanup(func() { _ = agent.Close() })

	deps := Deps{
		Logger:    zerolog.Nop(),
		Processes: f.procs.scan,
		Control:   f.control,
		System: func(context.Context) (SystemStats, error) {
			return SystemStats{CPUPercent: 12.34, MemoryPercent: 40, DiskPercent: 71.26}, nil
		},
		Redis:     rdb,
		Goals:     agent,
		GoalStore: "sqlite",
		LogDir:    f.logDir,
		Getenv:    func(k string) string { return f.env[k] },
		Now:       func() time.Time { return time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC) },
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.server = New(deps)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.server.App().Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (f *fixture) writeLog(t *testing.T, kind catalog.Kind, lines ...string) {
	t.Helper()
	s, ok := catalog.Lookup(string(kind))
	require.True(t, ok)
	path := filepath.Join(f.logDir, s.LogFile())
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	status, body := f.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "2026-03-04T09:30:00Z", body["timestamp"])
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.procs.set(procs.Process{Kind: catalog.KindBash, PID: 42})
	f.redis.Set("a", "1")

	status, body := f.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, status)

	servers := body["servers"].(map[string]any)
	assert.EqualValues(t, len(catalog.All()), servers["total"])
	assert.EqualValues(t, 1, servers["running"])
	assert.EqualValues(t, len(catalog.All())-1, servers["stopped"])

	redisView := body["redis"].(map[string]any)
	assert.Equal(t, true, redisView["connected"])
	assert.EqualValues(t, 1, redisView["total_keys"])

	system := body["system"].(map[string]any)
	assert.InDelta(t, 12.34, system["cpu_percent"], 0.001)
}

func TestStatusWithoutRedis(t *testing.T) {
	f := newFixture(t, withoutRedis())
	_, body := f.do(t, http.MethodGet, "/api/status", nil)
	assert.Equal(t, false, body["redis"].(map[string]any)["connected"])
}

func TestServers(t *testing.T) {
	f := newFixture(t)
	f.env["GITHUB_PERSONAL_ACCESS_TOKEN"] = "ghp_abcdef"
	f.procs.set(procs.Process{Kind: catalog.KindGitHub, PID: 7, Uptime: 30, MemoryMB: 12.5, CPUPercent: 1.5})

	_, body := f.do(t, http.MethodGet, "/api/servers", nil)
	list := body["servers"].([]any)
	require.Len(t, list, len(catalog.All()))

	byKey := map[string]map[string]any{}
	for _, item := range list {
		m := item.(map[string]any)
		byKey[m["key"].(string)] = m
	}
	gh := byKey["github"]
	assert.Equal(t, "running", gh["status"])
	assert.Equal(t, true, gh["env_configured"])
	assert.EqualValues(t, 7, gh["details"].(map[string]any)["pid"])
	assert.True(t, strings.HasSuffix(gh["log_file"].(string), "github_server.log"))

	jira := byKey["jira"]
	assert.Equal(t, "stopped", jira["status"])
	assert.Equal(t, false, jira["env_configured"])
	assert.Len(t, jira["required_env_vars"], 3)
	assert.Empty(t, jira["details"])
}

func TestControlAll(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/api/servers/control-all", map[string]string{"action": "reboot"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", body["error"])

	status, body = f.do(t, http.MethodPost, "/api/servers/control-all", map[string]string{"action": "STOP"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "stop", body["action"])
	assert.Equal(t, []string{"stop"}, f.control.actions)
}

func TestControlAllWithoutController(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Control = nil })
	status, _ := f.do(t, http.MethodPost, "/api/servers/control-all", map[string]string{"action": "start"})
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestLogs(t *testing.T) {
	f := newFixture(t)
	f.writeLog(t, catalog.KindBash,
		`{"level":"info","message":"started"}`,
		"",
		`{"level":"error","message":"boom"}`,
		`{"level":"warn","message":"slow"}`,
	)

	status, body := f.do(t, http.MethodGet, "/api/logs?server=bash&lines=2", nil)
	require.Equal(t, http.StatusOK, status)
	logs := body["logs"].([]any)
	require.Len(t, logs, 2)
	assert.Equal(t, "error", logs[0].(map[string]any)["level"])
	assert.Equal(t, "warning", logs[1].(map[string]any)["level"])

	_, body = f.do(t, http.MethodGet, "/api/logs", nil)
	summary := body["summary"].(map[string]any)
	assert.EqualValues(t, 1, summary["total_errors"])
	assert.EqualValues(t, 1, summary["total_warnings"])
	all := body["all_servers"].(map[string]any)
	assert.Len(t, all, len(catalog.All()))
	assert.Empty(t, all["jira"])

	status, _ = f.do(t, http.MethodGet, "/api/logs?server=nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestEnv(t *testing.T) {
	f := newFixture(t)
	f.env["JIRA_BASE_URL"] = "https://example.atlassian.net"
	f.env["JIRA_EMAIL"] = "a@b.c"

	_, body := f.do(t, http.MethodGet, "/api/env", nil)
	jira := body["servers"].(map[string]any)["jira"].(map[string]any)
	assert.Equal(t, "Jira Server", jira["name"])
	assert.Equal(t, false, jira["all_set"])
	vars := jira["env_vars"].(map[string]any)
	assert.Equal(t, "http***", vars["JIRA_BASE_URL"].(map[string]any)["masked_value"])
	assert.Equal(t, "***", vars["JIRA_EMAIL"].(map[string]any)["masked_value"])
	assert.Equal(t, "Not set", vars["JIRA_API_TOKEN"].(map[string]any)["masked_value"])
	assert.Equal(t, false, vars["JIRA_API_TOKEN"].(map[string]any)["configured"])

	bash := body["servers"].(map[string]any)["bash"].(map[string]any)
	assert.Equal(t, true, bash["all_set"])
}

func TestIndexPage(t *testing.T) {
	f := newFixture(t)
	resp, err := f.server.App().Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "MCP Operations Dashboard")
}

func TestMaskValue(t *testing.T) {
	assert.Equal(t, "Not set", MaskValue(""))
	assert.Equal(t, "***", MaskValue("abcdef"))
	assert.Equal(t, "abcd***", MaskValue("abcdefg"))
}

func TestDetectLevel(t *testing.T) {
	cases := map[string]string{
		"2026-03-04 ERROR failed":     "error",
		`{"level":"fatal"}`:           "error",
		"CRITICAL disk":               "error",
		"Warning: slow":               "warning",
		`{"level":"debug","msg":"x"}`: "debug",
		"all good":                    "info",
	}
	for line, want := range cases {
		assert.Equal(t, want, DetectLevel(line), line)
	}
}

func TestTailLog(t *testing.T) {
	dir := t.TempDir()
	lines, err := TailLog(filepath.Join(dir, "missing.log"), 10)
	require.NoError(t, err)
	assert.Empty(t, lines)

	path := filepath.Join(dir, "a.log")
	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString("line ")
		b.WriteString(string(rune('a' + i)))
		b.WriteString("\n\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	lines, err = TailLog(path, 3)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "line r", lines[0].Text)
	assert.Equal(t, "line t", lines[2].Text)
}
