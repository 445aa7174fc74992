// Package procs finds, starts and stops MCP server processes.
//
// A server process is recognised by its -server flag, so anything launched
// through the mcp binary shows up regardless of how it was started.
package procs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/mcpsuite/mcpsuite/internal/services/mcp/catalog"
)

// Process is one running server.
type Process struct {
	Kind       catalog.Kind `json:"key"`
	Name       string       `json:"name"`
	PID        int32        `json:"pid"`
	Uptime     float64      `json:"uptime"`
	MemoryMB   float64      `json:"memory_mb"`
	CPUPercent float64      `json:"cpu_percent"`
}

// MatchKind reports which catalog server a command line runs. It accepts
// "-server=x", "--server=x" and "-server x".
func MatchKind(args []string) (catalog.Kind, bool) {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name != "server" || !strings.HasPrefix(arg, "-") {
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return "", false
			}
			value = args[i+1]
		}
		if s, ok := catalog.Lookup(value); ok {
			return s.Kind, true
		}
		return "", false
	}
	return "", false
}

// Scan lists running server processes ordered by kind then pid. Processes
// that vanish or deny access while being read are skipped.
func Scan(ctx context.Context) ([]Process, error) {
	all, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	now := time.Now()
	out := []Process{}
	for _, p := range all {
		args, err := p.CmdlineSliceWithContext(ctx)
		if err != nil || len(args) < 2 {
			continue
		}
		kind, ok := MatchKind(args[1:])
		if !ok {
			continue
		}
		out = append(out, describe(ctx, p, kind, now))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].PID < out[j].PID
	})
	return out, nil
}

func describe(ctx context.Context, p *process.Process, kind catalog.Kind, now time.Time) Process {
	info := Process{Kind: kind, PID: p.Pid}
	if s, ok := catalog.Lookup(string(kind)); ok {
		info.Name = s.Name
	}
	if created, err := p.CreateTimeWithContext(ctx); err == nil {
		info.Uptime = math.Round(now.Sub(time.UnixMilli(created)).Seconds())
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		info.MemoryMB = round2(float64(mem.RSS) / (1024 * 1024))
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		info.CPUPercent = round2(cpu)
	}
	return info
}

// ByKind indexes processes by server kind, keeping the first of each.
func ByKind(list []Process) map[catalog.Kind]Process {
	out := make(map[catalog.Kind]Process, len(list))
	for _, p := range list {
		if _, seen := out[p.Kind]; !seen {
			out[p.Kind] = p
		}
	}
	return out
}

// Stop sends SIGTERM to pid and kills it when it is still alive after grace.
func Stop(ctx context.Context, pid int32, grace time.Duration) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return nil
		}
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := p.TerminateWithContext(ctx); err != nil {
		return fmt.Errorf("terminate %d: %w", pid, err)
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if running, err := p.IsRunningWithContext(ctx); err != nil || !running {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	if running, _ := p.IsRunningWithContext(ctx); !running {
		return nil
	}
	if err := p.KillWithContext(ctx); err != nil {
		return fmt.Errorf("kill %d: %w", pid, err)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
