package dashboard

import (
	"context"
	"math"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemStats is host load as percentages.
type SystemStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
}

// rounded keeps one decimal so small jitter does not count as a change.
func (s SystemStats) rounded() SystemStats {
	r := func(v float64) float64 { return math.Round(v*10) / 10 }
	return SystemStats{CPUPercent: r(s.CPUPercent), MemoryPercent: r(s.MemoryPercent), DiskPercent: r(s.DiskPercent)}
}

// HostStats samples CPU over 100ms plus memory and root disk usage. A
// failing probe leaves its field at zero.
func HostStats(ctx context.Context) (SystemStats, error) {
	var out SystemStats
	if pct, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false); err == nil && len(pct) > 0 {
		out.CPUPercent = pct[0]
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return out, err
	}
	out.MemoryPercent = vm.UsedPercent
	usage, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return out, err
	}
	out.DiskPercent = usage.UsedPercent
	return out, nil
}
