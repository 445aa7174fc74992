// Package dashboard parses dashboard command flags and serves the
// operations dashboard.
package dashboard

import (
	"context"
	"flag"
	"path/filepath"

	entrypoint "github.com/mcpsuite/mcpsuite/internal/platform/cmd"
	"github.com/mcpsuite/mcpsuite/internal/platform/logging"
	"github.com/mcpsuite/mcpsuite/internal/platform/storage/redisconn"
	dashboardservice "github.com/mcpsuite/mcpsuite/internal/services/dashboard"
	"github.com/mcpsuite/mcpsuite/internal/services/goalagent"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/procs"
)

// Config holds dashboard command configuration.
type Config struct {
	Addr        string `env:"MCPSUITE_DASHBOARD_ADDR" envDefault:":8000"`
	ProjectRoot string `env:"MCPSUITE_PROJECT_ROOT"`
	LogDir      string `env:"MCPSUITE_LOG_DIR" envDefault:"logs"`
	LogLevel    string `env:"MCPSUITE_LOG_LEVEL" envDefault:"info"`
	// MCPBinary is the server binary the controller launches.
	MCPBinary string `env:"MCPSUITE_MCP_BINARY"`
	Redis     redisconn.Config
	Goals     goalagent.Config
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&cfg.ProjectRoot, "project-root", cfg.ProjectRoot, "Directory holding logs/ and data/")
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for server log files")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.MCPBinary, "mcp-binary", cfg.MCPBinary, "Path to the mcp server binary")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	cfg.LogDir = cfg.resolve(cfg.LogDir)
	cfg.Goals.SQLitePath = cfg.resolve(cfg.Goals.SQLitePath)
	return cfg, nil
}

// resolve anchors relative paths at ProjectRoot when one is set.
func (c Config) resolve(path string) string {
	if c.ProjectRoot == "" || path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.ProjectRoot, path)
}

// Run serves the dashboard until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceDashboard, func(ctx context.Context) error {
		return serve(ctx, cfg)
	})
}

func serve(ctx context.Context, cfg Config) error {
	logger, err := logging.New(logging.Options{
		Dir:   cfg.LogDir,
		File:  "dashboard.log",
		Name:  "Dashboard",
		Level: cfg.LogLevel,
	})
	if err != nil {
		return err
	}
	defer logger.Close()

	rdb, err := redisconn.Open(ctx, cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Redis.Address()).Msg("redis unavailable")
	}
	defer rdb.Close()

	var (
		agent    *goalagent.Agent
		goalsErr error
	)
	store, cached, err := goalagent.OpenStore(ctx, cfg.Goals, logger.Logger)
	if err != nil {
		goalsErr = err
		logger.Warn().Err(err).Msg("goal store unavailable")
	} else {
		agent = goalagent.New(store, goalagent.Options{
			Logger:       logger.Logger,
			Workers:      cfg.Goals.MaxWorkers,
			StoreKind:    cfg.Goals.Store,
			CacheEnabled: cached,
		})
		defer agent.Close()
	}

	launcher := procs.Launcher{
		Binary: cfg.MCPBinary,
		LogDir: cfg.LogDir,
	}
	if launcher.Binary == "" {
		launcher.Binary = procs.DefaultBinary()
	}
	controller := &procs.Controller{Launcher: launcher, Logger: logger}

	logging.Startup(logger, "MCP Operations Dashboard",
		logging.Setting{Key: "Address", Value: cfg.Addr},
		logging.Setting{Key: "Log Dir", Value: cfg.LogDir},
		logging.Setting{Key: "Redis", Value: cfg.Redis.Address()},
		logging.Setting{Key: "Goal Store", Value: cfg.Goals.Store},
		logging.Setting{Key: "MCP Binary", Value: launcher.Binary},
	)
	defer logging.Shutdown(logger, "MCP Operations Dashboard")

	srv := dashboardservice.New(dashboardservice.Deps{
		Logger:    logger.Logger,
		Control:   controller,
		Redis:     rdb,
		Goals:     agent,
		GoalsErr:  goalsErr,
		GoalStore: cfg.Goals.Store,
		LogDir:    cfg.LogDir,
	})
	return srv.Run(ctx, cfg.Addr)
}
