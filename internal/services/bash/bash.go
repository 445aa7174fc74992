// Package bash implements the command execution MCP server.
package bash

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
	"github.com/mcpsuite/mcpsuite/internal/platform/logging"
)

const (
	maxTimeout     = 300 * time.Second
	maxListEntries = 1000
	// outputGrace is how long output is still read after the shell exits.
	// Background jobs that inherit stdout can hold the pipe open forever.
	outputGrace = 250 * time.Millisecond
)

// restrictedPrefixes are refused when a command starts with them.
var restrictedPrefixes = []string{
	"rm -rf /", "mkfs", "dd if=", "fdisk", "parted", "mount", "umount",
	"chmod 777", "chown root", "passwd", "su ", "sudo ", "shutdown",
	"reboot", "halt", "init 0", "init 6",
}

// Executor runs shell commands with a deadline and bounded output.
type Executor struct {
	shell        string
	defaultDir   string
	allowedPaths []string
	timeout      time.Duration
	maxOutput    int
	logger       *logging.Logger
}

// NewExecutor builds an executor. bash is preferred, sh is the fallback.
func NewExecutor(cfg Config, logger *logging.Logger) (*Executor, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	shell, err := exec.LookPath("bash")
	if err != nil {
		if shell, err = exec.LookPath("sh"); err != nil {
			return nil, fmt.Errorf("no shell found: %w", err)
		}
	}
	dir := cfg.DefaultDir
	if dir == "" {
		if dir, err = os.UserHomeDir(); err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
	}
	allowed := make([]string, 0, len(cfg.AllowedPaths))
	for _, p := range cfg.AllowedPaths {
		if p = strings.TrimSpace(p); p != "" {
			allowed = append(allowed, filepath.Clean(expandHome(p)))
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Executor{
		shell:        shell,
		defaultDir:   dir,
		allowedPaths: allowed,
		timeout:      timeout,
		maxOutput:    cfg.MaxOutput,
		logger:       logger,
	}, nil
}

// CommandRequest is one command to run.
type CommandRequest struct {
	Command    string
	WorkingDir string
	// Timeout of zero uses the configured default.
	Timeout time.Duration
	Env     map[string]string
}

// CommandResult is the outcome of a command.
type CommandResult struct {
	Index      int    `json:"index"`
	Command    string `json:"command"`
	WorkingDir string `json:"working_dir"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	Success    bool   `json:"success"`
	DurationMS int64  `json:"duration_ms"`
	TimedOut   bool   `json:"timed_out"`
	Truncated  bool   `json:"truncated"`
	Error      string `json:"error,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Execute runs req through the shell. A non-zero exit is reported in the
// result, not as an error. Errors are reserved for commands that could not
// be started.
func (e *Executor) Execute(ctx context.Context, req CommandRequest) (CommandResult, error) {
	if err := checkCommand(req.Command); err != nil {
		return CommandResult{}, err
	}
	dir, err := e.workingDir(req.WorkingDir)
	if err != nil {
		return CommandResult{}, err
	}
	timeout := req.Timeout
	if timeout == 0 {
		timeout = e.timeout
	}
	if timeout < 0 || timeout > maxTimeout {
		return CommandResult{}, apperrors.Validation("invalid timeout %s: must be between 1 and %d seconds", timeout, int(maxTimeout.Seconds()))
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command(e.shell, "-c", req.Command)
	cmd.Dir = dir
	cmd.Env = mergeEnv(os.Environ(), req.Env)
	setProcessGroup(cmd)
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return CommandResult{}, apperrors.Wrap(apperrors.CodeUnexpected, "open stdout: "+err.Error(), err)
	}
	defer stdoutR.Close()
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutW.Close()
		return CommandResult{}, apperrors.Wrap(apperrors.CodeUnexpected, "open stderr: "+err.Error(), err)
	}
	defer stderrR.Close()
	cmd.Stdout, cmd.Stderr = stdoutW, stderrW

	e.logger.Info().Str("command", req.Command).Str("dir", dir).Msg("executing command")
	start := time.Now()
	err = cmd.Start()
	stdoutW.Close()
	stderrW.Close()
	if err != nil {
		return CommandResult{}, apperrors.Wrap(apperrors.CodeUnexpected, "start command: "+err.Error(), err)
	}

	done := make(chan struct{})
	watcherExited := make(chan struct{})
	var killed bool
	go func() {
		defer close(watcherExited)
		select {
		case <-runCtx.Done():
			killProcessGroup(cmd)
			killed = true
		case <-done:
		}
	}()

	stdout := &cappedBuffer{limit: e.maxOutput}
	stderr := &cappedBuffer{limit: e.maxOutput}
	var g errgroup.Group
	g.Go(func() error { return drain(stdout, stdoutR) })
	g.Go(func() error { return drain(stderr, stderrR) })
	waitErr := cmd.Wait()
	close(done)
	<-watcherExited
	// The shell is gone; stop reading once whatever it left behind has had
	// a moment to flush.
	grace := time.Now().Add(outputGrace)
	for _, r := range []*os.File{stdoutR, stderrR} {
		if err := r.SetReadDeadline(grace); err != nil {
			r.Close()
		}
	}
	_ = g.Wait()

	res := CommandResult{
		Command:    req.Command,
		WorkingDir: dir,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		ExitCode:   cmd.ProcessState.ExitCode(),
		DurationMS: time.Since(start).Milliseconds(),
		Truncated:  stdout.truncated || stderr.truncated,
	}
	if killed {
		if ctx.Err() != nil {
			return CommandResult{}, ctx.Err()
		}
		res.TimedOut = true
		res.Error = fmt.Sprintf("command timed out after %s", timeout)
		res.Suggestion = "Increase the timeout or split the command into smaller steps."
		e.logger.Warn().Str("command", req.Command).Dur("timeout", timeout).Msg("command timed out")
		return res, nil
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return CommandResult{}, apperrors.Wrap(apperrors.CodeUnexpected, "wait for command: "+waitErr.Error(), waitErr)
	}
	res.Success = res.ExitCode == 0
	if !res.Success {
		res.Suggestion = suggestFor(res.Stderr)
		e.logger.Warn().Str("command", req.Command).Int("exit_code", res.ExitCode).Msg("command failed")
	}
	return res, nil
}

func checkCommand(command string) error {
	trimmed := strings.ToLower(strings.TrimSpace(command))
	if trimmed == "" {
		return apperrors.Validation("command is required")
	}
	for _, prefix := range restrictedPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return apperrors.Newf(apperrors.CodePermission, "command %q is restricted (matches %q)", command, prefix)
		}
	}
	return nil
}

func suggestFor(stderr string) string {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "command not found"):
		return "The command was not found. Check that it is installed and on PATH."
	case strings.Contains(lower, "permission denied"):
		return "Permission denied. Check file permissions."
	case strings.Contains(lower, "no such file or directory"):
		return "A file or directory was not found. Check that the path exists."
	}
	return ""
}

// workingDir resolves dir, falling back to the default. A missing
// directory is rejected before anything runs.
func (e *Executor) workingDir(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		dir = e.defaultDir
	}
	resolved, err := e.resolve(dir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", apperrors.Validation("working directory does not exist: %s", resolved)
	}
	if !info.IsDir() {
		return "", apperrors.Validation("working directory is not a directory: %s", resolved)
	}
	return resolved, nil
}

func (e *Executor) resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", apperrors.Validation("path is required")
	}
	path = expandHome(path)
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", apperrors.Validation("invalid path %q: %v", path, err)
	}
	if len(e.allowedPaths) == 0 {
		return abs, nil
	}
	for _, allowed := range e.allowedPaths {
		if abs == allowed || strings.HasPrefix(abs, allowed+string(filepath.Separator)) {
			return abs, nil
		}
	}
	return "", apperrors.WithMetadata(apperrors.CodePermission,
		fmt.Sprintf("path %s is outside the allowed directories", abs),
		map[string]any{"allowed_paths": e.allowedPaths})
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := append([]string{}, base...)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}

// cappedBuffer keeps the first limit bytes and drops the rest. A limit of
// zero keeps everything.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.limit <= 0 {
		return b.buf.Write(p)
	}
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	return strings.ToValidUTF8(b.buf.String(), "�")
}

func drain(dst io.Writer, src io.Reader) error {
	_, err := io.Copy(dst, src)
	if errors.Is(err, os.ErrClosed) || errors.Is(err, os.ErrDeadlineExceeded) {
		return nil
	}
	return err
}
