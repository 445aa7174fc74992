// Package proxy parses mcp-http-proxy flags and relays stdio JSON-RPC to a
// remote MCP server.
package proxy

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"time"

	entrypoint "github.com/mcpsuite/mcpsuite/internal/platform/cmd"
	"github.com/mcpsuite/mcpsuite/internal/platform/logging"
	"github.com/mcpsuite/mcpsuite/internal/platform/timeouts"
	proxyservice "github.com/mcpsuite/mcpsuite/internal/services/proxy"
)

// ErrUsage reports a missing base URL.
var ErrUsage = errors.New("usage: mcp-http-proxy [flags] <base_url>")

// Config holds proxy command configuration.
type Config struct {
	// BaseURL may also be given as the first positional argument.
	BaseURL string        `env:"MCPSUITE_PROXY_URL"`
	Token   string        `env:"MCPSUITE_MCP_HTTP_TOKEN"`
	Timeout time.Duration `env:"MCPSUITE_PROXY_TIMEOUT"`
	// LogDir defaults to the system temp directory since stdio clients
	// launch the proxy from arbitrary working directories.
	LogDir   string `env:"MCPSUITE_PROXY_LOG_DIR"`
	LogLevel string `env:"MCPSUITE_LOG_LEVEL" envDefault:"info"`
}

// ParseConfig parses environment, flags and the positional base URL.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = timeouts.ProxyRequest
	}
	fs.StringVar(&cfg.Token, "token", cfg.Token, "Bearer token for the remote /mcp endpoint")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Timeout for one forwarded request")
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for the proxy log file")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		cfg.BaseURL = fs.Arg(0)
	}
	if cfg.BaseURL == "" {
		return Config{}, ErrUsage
	}
	if err := proxyservice.ValidateBaseURL(cfg.BaseURL); err != nil {
		return Config{}, err
	}
	if cfg.LogDir == "" {
		cfg.LogDir = os.TempDir()
	}
	return cfg, nil
}

// Run relays stdin to the remote server until stdin closes or ctx ends.
func Run(ctx context.Context, cfg Config, stdin io.Reader, stdout io.Writer) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceProxy, func(ctx context.Context) error {
		logger, err := logging.New(logging.Options{
			Dir:   cfg.LogDir,
			File:  "mcp-http-proxy.log",
			Name:  "mcp-http-proxy",
			Level: cfg.LogLevel,
		})
		if err != nil {
			return err
		}
		defer logger.Close()

		logging.Startup(logger, "MCP HTTP Proxy",
			logging.Setting{Key: "Base URL", Value: cfg.BaseURL},
			logging.Setting{Key: "Token", Value: cfg.Token},
			logging.Setting{Key: "Timeout", Value: cfg.Timeout.String()},
		)
		defer logging.Shutdown(logger, "MCP HTTP Proxy")

		p, err := proxyservice.New(proxyservice.Options{
			BaseURL: cfg.BaseURL,
			Token:   cfg.Token,
			Timeout: cfg.Timeout,
			Logger:  logger.Logger,
		})
		if err != nil {
			return err
		}
		return p.Run(ctx, stdin, stdout)
	})
}
