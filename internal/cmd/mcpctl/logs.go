package mcpctl

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpsuite/mcpsuite/internal/platform/logging"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/catalog"
)

const followInterval = 500 * time.Millisecond

func (a *App) logPath(s catalog.Server) string {
	return filepath.Join(a.Config.LogDir, s.LogFile())
}

type logsOptions struct {
	lines  int
	follow bool
	all    bool
}

func (a *App) logsCommand() *cobra.Command {
	var opts logsOptions
	cmd := &cobra.Command{
		Use:   "logs [server]",
		Short: "View logs for one server or all servers",
		Example: `  mcpctl logs github
  mcpctl logs github -f
  mcpctl logs github -n 100
  mcpctl logs --all`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server := ""
			if len(args) == 1 {
				server = args[0]
			}
			return a.logs(cmd.Context(), newPrinter(cmd.OutOrStdout()), server, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output")
	cmd.Flags().BoolVarP(&opts.all, "all", "a", false, "Show logs for all servers")
	return cmd
}

func (a *App) logs(ctx context.Context, p printer, server string, opts logsOptions) error {
	p.header("MCP Server Logs")

	if opts.all {
		for _, s := range catalog.All() {
			p.blank()
			bold.Fprintln(p.w, strings.Repeat("─", width))
			bold.Fprintln(p.w, s.Name)
			bold.Fprintln(p.w, strings.Repeat("─", width))
			p.blank()
			path := a.logPath(s)
			if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
				p.warn("Log file not found: " + path)
				continue
			}
			if err := a.printTail(p, path, opts.lines); err != nil {
				p.fail("Error reading log: " + err.Error())
			}
		}
		p.blank()
		return nil
	}

	if server == "" {
		p.fail("Please specify a server name or use --all")
		p.availableServers()
		return errReported
	}
	s, ok := catalog.Lookup(strings.ReplaceAll(server, " ", "-"))
	if !ok {
		p.fail("Unknown server: " + server)
		p.availableServers()
		return errReported
	}
	path := a.logPath(s)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		p.warn("Log file not found: " + path)
		p.info("Server may not have been started yet or logs are not being written")
		p.blank()
		return errReported
	}

	p.line("Log file: %s", path)
	bold.Fprintln(p.w, strings.Repeat("─", width))
	p.blank()
	if err := a.printTail(p, path, opts.lines); err != nil {
		p.fail("Error reading log: " + err.Error())
		return errReported
	}
	if opts.follow {
		if err := logging.Follow(ctx, path, p.w, followInterval); err != nil {
			return err
		}
		p.blank()
		p.info("Stopped following logs")
	}
	p.blank()
	return nil
}

func (a *App) printTail(p printer, path string, n int) error {
	lines, err := logging.Tail(path, n)
	if err != nil {
		return err
	}
	for _, line := range lines {
		p.line("%s", line)
	}
	return nil
}
