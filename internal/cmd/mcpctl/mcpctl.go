// Package mcpctl implements the mcpctl command line: checking, launching,
// stopping and inspecting the MCP servers and the dashboard.
package mcpctl

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	entrypoint "github.com/mcpsuite/mcpsuite/internal/platform/cmd"
	"github.com/mcpsuite/mcpsuite/internal/platform/logging"
	"github.com/mcpsuite/mcpsuite/internal/platform/storage/redisconn"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/procs"
)

// Version is printed by --version.
const Version = "1.0.0"

// errReported marks a failure whose details were already printed.
var errReported = errors.New("command failed")

// Config holds mcpctl configuration, read from the environment and .env.
type Config struct {
	ProjectRoot     string `env:"MCPSUITE_PROJECT_ROOT"`
	LogDir          string `env:"MCPSUITE_LOG_DIR" envDefault:"logs"`
	MCPBinary       string `env:"MCPSUITE_MCP_BINARY"`
	DashboardBinary string `env:"MCPSUITE_DASHBOARD_BINARY"`
	DashboardAddr   string `env:"MCPSUITE_DASHBOARD_ADDR" envDefault:":8000"`
	Redis           redisconn.Config
}

// LoadConfig reads Config and fills in binary and directory defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.ProjectRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.ProjectRoot = wd
		}
	}
	if cfg.LogDir != "" && !filepath.IsAbs(cfg.LogDir) {
		cfg.LogDir = filepath.Join(cfg.ProjectRoot, cfg.LogDir)
	}
	if cfg.MCPBinary == "" {
		cfg.MCPBinary = procs.DefaultBinary()
	}
	if cfg.DashboardBinary == "" {
		cfg.DashboardBinary = procs.SiblingBinary("dashboard")
	}
	return cfg, nil
}

// DashboardURL is the browser address of the configured dashboard.
func (c Config) DashboardURL() string {
	host, port, err := net.SplitHostPort(c.DashboardAddr)
	if err != nil {
		return "http://" + c.DashboardAddr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// App carries the collaborators shared by every command.
type App struct {
	Config     Config
	Getenv     func(string) string
	Scan       func(ctx context.Context) ([]procs.Process, error)
	Controller *procs.Controller
	RedisUp    func(ctx context.Context) bool
	Now        func() time.Time
	// Grace is the SIGTERM to SIGKILL delay for stop.
	Grace time.Duration
}

// NewApp wires production collaborators for cfg.
func NewApp(cfg Config, logger *logging.Logger) *App {
	launcher := procs.Launcher{Binary: cfg.MCPBinary, LogDir: cfg.LogDir}
	return &App{
		Config:     cfg,
		Getenv:     os.Getenv,
		Scan:       procs.Scan,
		Controller: &procs.Controller{Launcher: launcher, Logger: logger},
		RedisUp: func(ctx context.Context) bool {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			rdb, err := redisconn.Open(ctx, cfg.Redis)
			if rdb != nil {
				_ = rdb.Close()
			}
			return err == nil
		},
		Now:   time.Now,
		Grace: 2 * time.Second,
	}
}

// NewRootCommand builds the mcpctl command tree.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "mcpctl",
		Short:         "mcpctl - MCP Server Management Toolkit",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("mcpctl version {{.Version}}\n")
	root.AddCommand(
		app.startCommand(),
		app.stopCommand(),
		app.statusCommand(),
		app.logsCommand(),
		app.testCommand(),
		app.dashboardCommand(),
		app.runCommand(),
		app.configCommand(),
		app.restartCommand(),
		app.watchCommand(),
	)
	return root
}

// Execute runs mcpctl with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := LoadConfig()
	if err != nil {
		newPrinter(stderr).fail("load config: " + err.Error())
		return 1
	}
	logger, err := logging.New(logging.Options{
		Dir:     cfg.LogDir,
		File:    "mcpctl.log",
		Name:    "mcpctl",
		Console: io.Discard,
	})
	if err != nil {
		newPrinter(stderr).fail(err.Error())
		return 1
	}
	defer logger.Close()

	root := NewRootCommand(NewApp(cfg, logger))
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err = entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceCtl, root.ExecuteContext)
	if err == nil {
		return 0
	}
	if !errors.Is(err, errReported) {
		logger.Error().Err(err).Strs("args", args).Msg("command failed")
		newPrinter(stderr).fail(strings.TrimSpace(err.Error()))
	}
	return 1
}
