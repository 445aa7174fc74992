package procs

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
	"github.com/mcpsuite/mcpsuite/internal/platform/logging"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/catalog"
)

// Actions accepted by Controller.Control.
const (
	ActionStart   = "start"
	ActionStop    = "stop"
	ActionRestart = "restart"
)

// Launcher starts servers in the background on the HTTP transport, one
// port per catalog entry.
type Launcher struct {
	// Binary is the mcp executable.
	Binary string
	LogDir string
	// Host and BasePort pick the listen address; the Nth catalog server
	// gets BasePort+N.
	Host     string
	BasePort int
	// Env is appended to the current environment.
	Env []string
	// Settle is how long a new process must stay up to count as started.
	Settle time.Duration
}

// DefaultBinary returns the mcp executable next to the running binary,
// falling back to "mcp" on PATH.
func DefaultBinary() string {
	return SiblingBinary("mcp")
}

// SiblingBinary returns name from the running binary's directory when it
// exists there, else name for a PATH lookup.
func SiblingBinary(name string) string {
	if self, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(self), name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return name
}

// Addr is the HTTP address a launched server listens on.
func (l Launcher) Addr(kind catalog.Kind) string {
	host := l.Host
	if host == "" {
		host = "localhost"
	}
	port := l.BasePort
	if port == 0 {
		port = 8101
	}
	for i, s := range catalog.All() {
		if s.Kind == kind {
			return net.JoinHostPort(host, strconv.Itoa(port+i))
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Args returns the command-line arguments for a server.
func (l Launcher) Args(s catalog.Server) []string {
	args := []string{
		s.ProcessMarker(),
		"-transport=http",
		"-http-addr=" + l.Addr(s.Kind),
	}
	if l.LogDir != "" {
		args = append(args, "-log-dir="+l.LogDir)
	}
	return args
}

// Start launches s and waits Settle for it to survive. Stderr goes to the
// server's log file.
func (l Launcher) Start(ctx context.Context, s catalog.Server) (int32, error) {
	bin := l.Binary
	if bin == "" {
		bin = DefaultBinary()
	}
	dir := l.LogDir
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create log dir: %w", err)
	}
	logPath := filepath.Join(dir, s.LogFile())
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", logPath, err)
	}

	cmd := exec.Command(bin, l.Args(s)...)
	cmd.Env = append(os.Environ(), l.Env...)
	cmd.Stderr = logFile
	detach(cmd)
	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return 0, fmt.Errorf("start %s: %w", s.Kind, err)
	}
	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
		_ = logFile.Close()
	}()

	settle := l.Settle
	if settle <= 0 {
		settle = 500 * time.Millisecond
	}
	select {
	case err := <-exited:
		return 0, fmt.Errorf("%s exited during startup (%v); check %s", s.Kind, err, logPath)
	case <-ctx.Done():
		return int32(cmd.Process.Pid), ctx.Err()
	case <-time.After(settle):
		return int32(cmd.Process.Pid), nil
	}
}

// ControlResult reports a start, stop or restart of every server.
type ControlResult struct {
	Status  string            `json:"status"`
	Action  string            `json:"action"`
	Results map[string]string `json:"results"`
	Note    string            `json:"note,omitempty"`
}

// Controller applies actions to catalog servers.
type Controller struct {
	Launcher Launcher
	// Scan defaults to the package Scan.
	Scan func(ctx context.Context) ([]Process, error)
	// Grace is the SIGTERM to SIGKILL delay. Defaults to 2s.
	Grace  time.Duration
	Logger *logging.Logger

	mu sync.Mutex
}

func (c *Controller) scan(ctx context.Context) ([]Process, error) {
	if c.Scan != nil {
		return c.Scan(ctx)
	}
	return Scan(ctx)
}

func (c *Controller) grace() time.Duration {
	if c.Grace <= 0 {
		return 2 * time.Second
	}
	return c.Grace
}

// StartServer launches kind unless it is already running.
func (c *Controller) StartServer(ctx context.Context, kind catalog.Kind) (string, error) {
	running, err := c.scan(ctx)
	if err != nil {
		return "", err
	}
	return c.start(ctx, kind, ByKind(running))
}

func (c *Controller) start(ctx context.Context, kind catalog.Kind, running map[catalog.Kind]Process) (string, error) {
	s, ok := catalog.Lookup(string(kind))
	if !ok {
		return "", apperrors.NotFound("unknown server %q", kind)
	}
	if p, ok := running[s.Kind]; ok {
		return fmt.Sprintf("Already running (PID: %d)", p.PID), nil
	}
	pid, err := c.Launcher.Start(ctx, s)
	if err != nil {
		return "", err
	}
	c.log().Info().Str("server", string(s.Kind)).Int32("pid", pid).Str("addr", c.Launcher.Addr(s.Kind)).Msg("server started")
	return fmt.Sprintf("Started (PID: %d) on %s", pid, c.Launcher.Addr(s.Kind)), nil
}

// StopServer stops every process running kind.
func (c *Controller) StopServer(ctx context.Context, kind catalog.Kind) (string, error) {
	running, err := c.scan(ctx)
	if err != nil {
		return "", err
	}
	return c.stop(ctx, kind, running)
}

func (c *Controller) stop(ctx context.Context, kind catalog.Kind, running []Process) (string, error) {
	stopped := 0
	for _, p := range running {
		if p.Kind != kind {
			continue
		}
		if err := Stop(ctx, p.PID, c.grace()); err != nil {
			return "", err
		}
		c.log().Info().Str("server", string(kind)).Int32("pid", p.PID).Msg("server stopped")
		stopped++
	}
	if stopped == 0 {
		return "Already stopped", nil
	}
	return fmt.Sprintf("Stopped %d process(es)", stopped), nil
}

// RestartServer stops then starts kind.
func (c *Controller) RestartServer(ctx context.Context, kind catalog.Kind) (string, error) {
	running, err := c.scan(ctx)
	if err != nil {
		return "", err
	}
	if _, err := c.stop(ctx, kind, running); err != nil {
		return "", err
	}
	msg, err := c.start(ctx, kind, nil)
	if err != nil {
		return "", err
	}
	return "Restarted: " + msg, nil
}

// Control applies action to every catalog server. Per-server failures are
// reported in the results instead of aborting the rest.
func (c *Controller) Control(ctx context.Context, action string) (ControlResult, error) {
	if action != ActionStart && action != ActionStop && action != ActionRestart {
		return ControlResult{}, apperrors.Validation("invalid action %q; use start, stop or restart", action)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	running, err := c.scan(ctx)
	if err != nil {
		return ControlResult{}, err
	}
	byKind := ByKind(running)
	out := ControlResult{Status: "success", Action: action, Results: map[string]string{}}
	for _, s := range catalog.All() {
		var (
			msg string
			err error
		)
		switch action {
		case ActionStop:
			msg, err = c.stop(ctx, s.Kind, running)
		case ActionStart:
			msg, err = c.start(ctx, s.Kind, byKind)
		case ActionRestart:
			if msg, err = c.stop(ctx, s.Kind, running); err == nil {
				msg, err = c.start(ctx, s.Kind, nil)
			}
		}
		if err != nil {
			out.Status = "partial"
			msg = "Error: " + err.Error()
			c.log().Warn().Err(err).Str("server", string(s.Kind)).Str("action", action).Msg("server control failed")
		}
		out.Results[string(s.Kind)] = msg
	}
	if action != ActionStop {
		out.Note = "Servers run on the HTTP transport; point clients or mcp-http-proxy at the listed addresses."
	}
	return out, nil
}

func (c *Controller) log() *logging.Logger {
	if c.Logger == nil {
		return logging.Nop()
	}
	return c.Logger
}
