package mcpctl

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sourcegraph/conc/iter"
	"github.com/spf13/cobra"

	"github.com/mcpsuite/mcpsuite/internal/services/mcp/catalog"
)

// probeResult is the outcome of starting one server over stdio.
type probeResult struct {
	Server   catalog.Server
	Tools    []string
	Duration time.Duration
	Err      error
}

func (a *App) testCommand() *cobra.Command {
	var (
		verbose bool
		timeout int
	)
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Start each server over stdio and list its tools",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.test(cmd.Context(), newPrinter(cmd.OutOrStdout()), time.Duration(timeout)*time.Second, verbose)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List every tool")
	cmd.Flags().IntVarP(&timeout, "timeout", "t", 3, "Timeout for each server test (seconds)")
	return cmd
}

func (a *App) test(ctx context.Context, p printer, timeout time.Duration, verbose bool) error {
	p.header("MCP Server Integration Tests")
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	bin, found := binaryPath(a.Config.MCPBinary)
	if !found {
		p.fail("mcp binary not found: " + bin)
		return errReported
	}
	p.line("Running startup tests for all servers...")
	p.line("Timeout: %s per server", timeout)
	p.blank()

	results := iter.Map(catalog.All(), func(s *catalog.Server) probeResult {
		return a.probe(ctx, bin, *s, timeout)
	})

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			p.fail(fmt.Sprintf("%s: %v", r.Server.Name, r.Err))
			failed++
			continue
		}
		p.success(fmt.Sprintf("%s: %d tools (%s)", r.Server.Name, len(r.Tools), r.Duration.Round(time.Millisecond)))
		if verbose {
			for _, name := range r.Tools {
				p.line("    - %s", name)
			}
		}
	}
	p.blank()
	if failed > 0 {
		p.fail(fmt.Sprintf("Some tests failed (%d of %d)", failed, len(results)))
		return errReported
	}
	p.success("All tests passed!")
	p.blank()
	return nil
}

// probe starts bin for s on stdio, runs the MCP handshake and lists tools.
func (a *App) probe(ctx context.Context, bin string, s catalog.Server, timeout time.Duration) probeResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	started := a.Now()
	out := probeResult{Server: s}

	cmd := exec.CommandContext(ctx, bin, s.ProcessMarker(), "-transport=stdio", "-log-dir="+a.Config.LogDir)
	cmd.Env = os.Environ()
	client := mcp.NewClient(&mcp.Implementation{Name: "mcpctl", Version: Version}, nil)
	session, err := client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		out.Err = fmt.Errorf("initialize: %w", err)
		return out
	}
	defer session.Close()

	res, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		out.Err = fmt.Errorf("tools/list: %w", err)
		return out
	}
	for _, tool := range res.Tools {
		out.Tools = append(out.Tools, tool.Name)
	}
	sort.Strings(out.Tools)
	if len(out.Tools) == 0 {
		out.Err = fmt.Errorf("no tools registered")
	}
	out.Duration = a.Now().Sub(started)
	return out
}
