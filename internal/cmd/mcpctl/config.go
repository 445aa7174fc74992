package mcpctl

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcpsuite/mcpsuite/internal/services/mcp/catalog"
)

func (a *App) configCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the current configuration and environment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.showConfig(cmd.Context(), newPrinter(cmd.OutOrStdout()))
			return nil
		},
	}
}

func (a *App) showConfig(ctx context.Context, p printer) {
	p.header("MCP Configuration")

	_, mcpFound := binaryPath(a.Config.MCPBinary)
	_, dashFound := binaryPath(a.Config.DashboardBinary)
	p.section("Project Information:")
	p.line("  Project Root:     %s", a.Config.ProjectRoot)
	p.line("  Logs Dir:         %s", a.Config.LogDir)
	p.line("  MCP Binary:       %s %s", p.check(mcpFound), a.Config.MCPBinary)
	p.line("  Dashboard Binary: %s %s", p.check(dashFound), a.Config.DashboardBinary)
	p.line("  Dashboard URL:    %s", a.Config.DashboardURL())
	p.blank()

	p.section("Available Servers:")
	for _, s := range catalog.All() {
		p.line("  %s", bold.Sprint(s.Name))
		p.line("     Key: %s", s.Kind)
		p.line("     HTTP Address: %s", a.Controller.Launcher.Addr(s.Kind))
		p.line("     Log: %s", a.logPath(s))
		if len(s.RequiredEnv) > 0 {
			p.line("     Env vars: %s", strings.Join(s.RequiredEnv, ", "))
		}
		p.blank()
	}

	p.section("Environment Variables:")
	for _, s := range catalog.All() {
		if len(s.RequiredEnv) == 0 {
			continue
		}
		p.line("  %s:", s.Name)
		for _, name := range s.RequiredEnv {
			set := strings.TrimSpace(a.Getenv(name)) != ""
			value := "not set"
			if set {
				value = "***"
			}
			p.line("    %s %s: %s", p.check(set), name, value)
		}
		p.blank()
	}

	p.section("Dependencies:")
	if a.RedisUp(ctx) {
		p.success("Redis: Running on " + a.Config.Redis.Address())
	} else {
		p.warn("Redis: Not running")
	}
	p.blank()
}
