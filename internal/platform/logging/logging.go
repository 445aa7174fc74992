// Package logging configures zerolog loggers for mcpsuite processes.
//
// Every logger writes all levels to a rotated file under the log directory
// and only errors to stderr. Stdout is left alone because stdio MCP servers
// use it for protocol framing.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxSizeMB  = 10
	maxBackups = 5
	timeFormat = "2006-01-02 15:04:05"
)

// Options controls logger construction.
type Options struct {
	// Dir is the log directory. Empty disables the file sink.
	Dir string
	// File is the log file name inside Dir, e.g. "github_server.log".
	File string
	// Name is attached to every entry as the "logger" field.
	Name string
	// Level is the minimum level written to the file (default info).
	Level string
	// Console receives entries at ConsoleLevel and above (default stderr).
	Console io.Writer
	// ConsoleLevel defaults to error.
	ConsoleLevel string
}

// Logger wraps a zerolog logger with the file sink that needs closing.
type Logger struct {
	zerolog.Logger
	file *lumberjack.Logger
}

// New builds a logger from opts.
func New(opts Options) (*Logger, error) {
	level, err := parseLevel(opts.Level, zerolog.InfoLevel)
	if err != nil {
		return nil, err
	}
	consoleLevel, err := parseLevel(opts.ConsoleLevel, zerolog.ErrorLevel)
	if err != nil {
		return nil, err
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	writers := []io.Writer{
		levelFilter{
			min: consoleLevel,
			w:   zerolog.ConsoleWriter{Out: console, NoColor: true, TimeFormat: timeFormat},
		},
	}

	out := &Logger{}
	if opts.Dir != "" && opts.File != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		out.file = &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, opts.File),
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
		}
		writers = append(writers, out.file)
	}

	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp()
	if opts.Name != "" {
		ctx = ctx.Str("logger", opts.Name)
	}
	out.Logger = ctx.Logger()
	return out, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// Close releases the rotated file, when one is open.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Path reports the current log file path, or "" without a file sink.
func (l *Logger) Path() string {
	if l == nil || l.file == nil {
		return ""
	}
	return l.file.Filename
}

// ServerLogFile returns the conventional log file name for a server key,
// e.g. "goal-agent" becomes "goal_agent_server.log".
func ServerLogFile(key string) string {
	key = strings.ReplaceAll(strings.TrimSpace(key), "-", "_")
	key = strings.TrimSuffix(key, "_server")
	return key + "_server.log"
}

func parseLevel(raw string, fallback zerolog.Level) (zerolog.Level, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return fallback, fmt.Errorf("parse log level %q: %w", raw, err)
	}
	return level, nil
}

type levelFilter struct {
	min zerolog.Level
	w   io.Writer
}

func (f levelFilter) Write(p []byte) (int, error) {
	return f.w.Write(p)
}

func (f levelFilter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < f.min {
		return len(p), nil
	}
	return f.w.Write(p)
}

var _ zerolog.LevelWriter = levelFilter{}

// stamp is used by banners so tests can compare output deterministically.
var stamp = func() string { return time.Now().Format(timeFormat) }
