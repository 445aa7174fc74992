package mcpctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
)

func (a *App) dashboardCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Run the web dashboard in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := newPrinter(cmd.OutOrStdout())
			p.header("Starting MCP Dashboard")
			return a.runDashboard(cmd.Context(), p)
		},
	}
}

// runDashboard runs the dashboard binary until it exits or ctx ends. On
// cancellation the child gets SIGINT and five seconds to finish.
func (a *App) runDashboard(ctx context.Context, p printer) error {
	bin, found := binaryPath(a.Config.DashboardBinary)
	if !found {
		p.fail("Dashboard binary not found: " + bin)
		return errReported
	}
	p.info("Starting web dashboard on " + a.Config.DashboardURL())
	p.info("Press CTRL+C to stop the dashboard")
	p.blank()

	cmd := exec.CommandContext(ctx, bin, "-addr", a.Config.DashboardAddr, "-log-dir", a.Config.LogDir)
	cmd.Stdout = p.w
	cmd.Stderr = p.w
	cmd.Env = os.Environ()
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 5 * time.Second
	err := cmd.Run()
	if ctx.Err() != nil {
		p.blank()
		p.success("Dashboard stopped")
		return nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.fail(fmt.Sprintf("Dashboard exited with status %d", exitErr.ExitCode()))
			return errReported
		}
		return fmt.Errorf("run dashboard: %w", err)
	}
	return nil
}

func (a *App) runCommand() *cobra.Command {
	var dashboardOnly, serversOnly bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start all MCP servers and the dashboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), newPrinter(cmd.OutOrStdout()), dashboardOnly, serversOnly)
		},
	}
	cmd.Flags().BoolVar(&dashboardOnly, "dashboard-only", false, "Start only the dashboard")
	cmd.Flags().BoolVar(&serversOnly, "servers-only", false, "Start only the servers")
	cmd.MarkFlagsMutuallyExclusive("dashboard-only", "servers-only")
	return cmd
}

func (a *App) run(ctx context.Context, p printer, dashboardOnly, serversOnly bool) error {
	p.header("Starting MCP Environment")

	p.section("Pre-flight Checks")
	if !dashboardOnly {
		if bin, found := binaryPath(a.Config.MCPBinary); !found {
			p.fail("mcp binary not found: " + bin)
			return errReported
		}
	}
	if a.RedisUp(ctx) {
		p.success("Redis is running")
	} else {
		p.warn("Redis is not running - Memory Cache Server may not work")
	}
	p.blank()

	if !dashboardOnly {
		if err := a.startServers(ctx, p); err != nil {
			return err
		}
	}

	if serversOnly {
		p.success("All servers started in background")
		p.blank()
		p.info("To view server status:")
		p.line("  %s", cyan.Sprint("mcpctl status"))
		p.info("To start the dashboard:")
		p.line("  %s", cyan.Sprint("mcpctl dashboard"))
		p.info("To stop all servers:")
		p.line("  %s", cyan.Sprint("mcpctl stop"))
		p.blank()
		return nil
	}

	p.section("Starting Dashboard")
	if err := a.runDashboard(ctx, p); err != nil {
		return err
	}
	if !dashboardOnly {
		p.blank()
		p.line("MCP servers are still running in the background.")
		p.line("To stop them, run:")
		p.line("  %s", cyan.Sprint("mcpctl stop"))
		p.blank()
	}
	return nil
}
