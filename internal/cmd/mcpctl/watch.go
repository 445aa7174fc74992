package mcpctl

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/mcpsuite/mcpsuite/internal/services/dashboard"
)

func (a *App) watchCommand() *cobra.Command {
	var (
		target string
		once   bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print live dashboard updates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if target == "" {
				target = a.Config.DashboardURL()
			}
			return a.watch(cmd.Context(), newPrinter(cmd.OutOrStdout()), target, once)
		},
	}
	cmd.Flags().StringVar(&target, "url", "", "Dashboard URL (default from MCPSUITE_DASHBOARD_ADDR)")
	cmd.Flags().BoolVar(&once, "once", false, "Exit after the first snapshot")
	return cmd
}

// wsURL turns a dashboard http(s) URL into its /ws endpoint.
func wsURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse dashboard url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("dashboard url must be http or https, got %q", raw)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

func (a *App) watch(ctx context.Context, p printer, target string, once bool) error {
	endpoint, err := wsURL(target)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		p.fail(fmt.Sprintf("Cannot connect to dashboard at %s: %v", endpoint, err))
		p.info("Start it with: mcpctl dashboard")
		return errReported
	}
	defer conn.Close()
	p.info("Watching " + endpoint + " (CTRL+C to stop)")

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var msg dashboard.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				p.blank()
				p.info("Stopped watching")
				return nil
			}
			p.warn("Dashboard connection closed: " + err.Error())
			return errReported
		}
		switch msg.Type {
		case dashboard.MessagePing:
			continue
		case dashboard.MessageInitial, dashboard.MessageUpdate:
			if msg.Data != nil {
				p.line("%s", summarize(msg))
			}
			if once {
				return nil
			}
		}
	}
}

func summarize(msg dashboard.Message) string {
	snap := msg.Data
	redis := red.Sprint("redis down")
	if snap.Status.Redis.Connected {
		redis = green.Sprintf("redis up (%d keys)", snap.Status.Redis.TotalKeys)
	}
	servers := fmt.Sprintf("servers %d/%d running", snap.Status.Servers.Running, snap.Status.Servers.Total)
	goals := fmt.Sprintf("goals %d, tasks %d", snap.Goals.Summary.TotalGoals, snap.Goals.Summary.TotalTasks)
	if snap.Goals.Error != "" {
		goals = yellow.Sprint("goals unavailable")
	}
	logs := fmt.Sprintf("log errors %d, warnings %d", snap.Logs.Summary.TotalErrors, snap.Logs.Summary.TotalWarnings)
	sys := snap.Status.System
	return fmt.Sprintf("[%s] %-7s %s | %s | %s | %s | cpu %.1f%% mem %.1f%% disk %.1f%%",
		msg.Timestamp, msg.Type, servers, redis, goals, logs, sys.CPUPercent, sys.MemoryPercent, sys.DiskPercent)
}
