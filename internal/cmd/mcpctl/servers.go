package mcpctl

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mcpsuite/mcpsuite/internal/services/mcp/catalog"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/procs"
)

// binaryPath resolves a configured binary, reporting whether it exists.
func binaryPath(bin string) (string, bool) {
	path, err := exec.LookPath(bin)
	if err != nil {
		return bin, false
	}
	return path, true
}

func (a *App) checkEnv(p printer) bool {
	ok := true
	for _, s := range catalog.All() {
		if len(s.RequiredEnv) == 0 {
			continue
		}
		p.line("\n  %s:", bold.Sprint(s.Name))
		for _, name := range s.RequiredEnv {
			set := strings.TrimSpace(a.Getenv(name)) != ""
			p.line("    %s %s", p.check(set), name)
			ok = ok && set
		}
	}
	p.blank()
	return ok
}

func (a *App) startCommand() *cobra.Command {
	var checkOnly bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Check configuration and start all MCP servers in the background",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.start(cmd.Context(), newPrinter(cmd.OutOrStdout()), checkOnly)
		},
	}
	cmd.Flags().BoolVar(&checkOnly, "check-only", false, "Only check configuration without starting")
	return cmd
}

func (a *App) start(ctx context.Context, p printer, checkOnly bool) error {
	p.header("MCP Server Configuration Check")

	p.section("Checking Server Binary")
	bin, found := binaryPath(a.Config.MCPBinary)
	if found {
		p.success("mcp binary: " + bin)
	} else {
		p.fail("mcp binary not found: " + bin)
	}
	p.blank()

	p.section("Checking Environment Variables")
	envOK := a.checkEnv(p)

	p.section("Checking Redis")
	redisUp := a.RedisUp(ctx)
	if redisUp {
		p.success("Redis is running")
	} else {
		p.warn("Redis is not running - Memory Cache Server will fail")
	}
	p.blank()

	p.header("Configuration Summary")
	if found {
		p.success(fmt.Sprintf("Server Binary: found, %d servers available", len(catalog.All())))
	} else {
		p.fail("Server binary is missing")
	}
	if envOK {
		p.success("Environment: All variables configured")
	} else {
		p.warn("Some environment variables are missing")
	}
	if redisUp {
		p.success("Redis: Running")
	} else {
		p.warn("Redis: Not running")
	}
	p.blank()

	if !found {
		p.fail("Cannot start servers - configuration issues detected")
		return errReported
	}
	if checkOnly {
		p.info("Configuration check complete (--check-only mode)")
		return nil
	}
	return a.startServers(ctx, p)
}

func (a *App) startServers(ctx context.Context, p printer) error {
	p.section("Starting MCP Servers")
	res, err := a.Controller.Control(ctx, procs.ActionStart)
	if err != nil {
		return err
	}
	started, failed := 0, 0
	for _, s := range catalog.All() {
		msg := res.Results[string(s.Kind)]
		switch {
		case strings.HasPrefix(msg, "Error:"):
			p.fail(fmt.Sprintf("%s - %s", s.Name, strings.TrimSpace(strings.TrimPrefix(msg, "Error:"))))
			failed++
		case strings.HasPrefix(msg, "Already running"):
			p.warn(fmt.Sprintf("%s is already running", s.Name))
		default:
			p.success(fmt.Sprintf("Started %s - %s", s.Name, msg))
			started++
		}
	}
	p.blank()
	if started > 0 {
		p.success(fmt.Sprintf("Started %d server(s), logs in %s", started, a.Config.LogDir))
	}
	if res.Note != "" {
		p.info(res.Note)
	}
	if failed > 0 {
		p.fail(fmt.Sprintf("Failed to start %d server(s)", failed))
		p.blank()
		return errReported
	}
	p.blank()
	return nil
}

func (a *App) stopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop all running MCP servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.stop(cmd.Context(), newPrinter(cmd.OutOrStdout()))
		},
	}
}

func (a *App) stop(ctx context.Context, p printer) error {
	p.header("Stopping MCP Servers")
	p.line("Searching for running server processes...")
	p.blank()

	running, err := a.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan processes: %w", err)
	}
	if len(running) == 0 {
		p.success("No MCP server processes found running")
		p.blank()
		return nil
	}

	p.line("Found %d server(s) running:", len(running))
	for _, proc := range running {
		p.line("  • %s (PID: %d)", serverName(proc.Kind), proc.PID)
	}
	p.blank()
	p.line("Stopping servers (SIGTERM, then SIGKILL after %s)...", a.Grace)

	failed := 0
	for _, proc := range running {
		p.line("  → Stopping %s (PID: %d)", serverName(proc.Kind), proc.PID)
		if err := procs.Stop(ctx, proc.PID, a.Grace); err != nil {
			p.fail(fmt.Sprintf("Error stopping %s: %v", serverName(proc.Kind), err))
			failed++
		}
	}
	p.blank()
	if failed > 0 {
		p.fail(fmt.Sprintf("%d server(s) could not be stopped", failed))
		return errReported
	}
	p.success("Server shutdown complete")
	p.blank()
	return nil
}

func serverName(kind catalog.Kind) string {
	if s, ok := catalog.Lookup(string(kind)); ok {
		return s.Name
	}
	return string(kind)
}

func (a *App) statusCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List MCP servers and their process status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.status(cmd.Context(), newPrinter(cmd.OutOrStdout()), verbose)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show log files and dependencies")
	return cmd
}

func (a *App) status(ctx context.Context, p printer, verbose bool) error {
	p.header("MCP Server Status")
	running, err := a.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan processes: %w", err)
	}
	byKind := procs.ByKind(running)

	table := tablewriter.NewWriter(p.w)
	headers := []string{"Server", "Key", "Status", "PID", "Uptime", "Memory", "CPU"}
	if verbose {
		headers = append(headers, "Log")
	}
	table.SetHeader(headers)
	table.SetBorder(true)
	table.SetAutoWrapText(false)
	for _, s := range catalog.All() {
		row := []string{s.Name, string(s.Kind), "stopped", "-", "-", "-", "-"}
		if proc, ok := byKind[s.Kind]; ok {
			row[2] = "running"
			row[3] = strconv.Itoa(int(proc.PID))
			row[4] = formatUptime(proc.Uptime)
			row[5] = fmt.Sprintf("%.1f MB", proc.MemoryMB)
			row[6] = fmt.Sprintf("%.1f%%", proc.CPUPercent)
		}
		if verbose {
			row = append(row, a.logSize(s))
		}
		table.Append(row)
	}
	table.Render()
	p.blank()

	if len(byKind) == 0 {
		p.info("No MCP servers currently running")
	} else {
		p.line("%s", green.Sprintf("%d of %d server(s) running", len(byKind), len(catalog.All())))
	}
	p.blank()

	if verbose {
		p.section("Dependencies:")
		if a.RedisUp(ctx) {
			p.success("Redis is running")
		} else {
			p.warn("Redis is not running")
		}
		p.blank()
	}
	return nil
}

func (a *App) logSize(s catalog.Server) string {
	path := a.logPath(s)
	info, err := os.Stat(path)
	if err != nil {
		return path + " (not created yet)"
	}
	return fmt.Sprintf("%s (%.1f KB)", path, float64(info.Size())/1024)
}

func (a *App) restartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restart <server>",
		Short: "Restart one server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.restart(cmd.Context(), newPrinter(cmd.OutOrStdout()), args[0])
		},
	}
}

func (a *App) restart(ctx context.Context, p printer, name string) error {
	p.header("Restarting " + name)
	s, ok := catalog.Lookup(strings.ReplaceAll(name, " ", "-"))
	if !ok {
		p.fail("Unknown server: " + name)
		p.availableServers()
		return errReported
	}
	msg, err := a.Controller.RestartServer(ctx, s.Kind)
	if err != nil {
		p.fail(fmt.Sprintf("Error restarting %s: %v", s.Name, err))
		return errReported
	}
	p.success(fmt.Sprintf("%s %s", s.Name, msg))
	p.info("Listening on " + a.Controller.Launcher.Addr(s.Kind))
	p.blank()
	return nil
}
