// Package mcp parses MCP command flags and runs the selected server.
package mcp

import (
	"context"
	"flag"
	"fmt"
	"strings"

	entrypoint "github.com/mcpsuite/mcpsuite/internal/platform/cmd"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/catalog"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/service"
)

// Config holds MCP command configuration.
type Config = service.Config

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	transport := string(cfg.Transport)
	allowed := strings.Join(cfg.AllowedHosts, ",")
	fs.StringVar(&cfg.Server, "server", cfg.Server, "Server to run: "+strings.Join(catalog.Keys(), ", "))
	fs.StringVar(&transport, "transport", transport, "Transport type: stdio or http")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP server address (for HTTP transport)")
	fs.StringVar(&allowed, "allowed-hosts", allowed, "Comma separated hosts accepted besides loopback")
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for server log files")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}

	cfg.Transport = service.TransportKind(strings.ToLower(strings.TrimSpace(transport)))
	cfg.AllowedHosts = nil
	for _, host := range strings.Split(allowed, ",") {
		if host = strings.TrimSpace(host); host != "" {
			cfg.AllowedHosts = append(cfg.AllowedHosts, host)
		}
	}
	if strings.TrimSpace(cfg.Server) == "" {
		return Config{}, fmt.Errorf("-server is required (one of %s)", strings.Join(catalog.Keys(), ", "))
	}
	return cfg, nil
}

// Run starts the selected MCP server.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMCP+"-"+cfg.Server, func(ctx context.Context) error {
		return service.Run(ctx, cfg)
	})
}
