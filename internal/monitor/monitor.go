// Package monitor reports host system state for the dashboard endpoints:
// cpu/memory snapshot, top processes, disk usage. Collection never fails
// hard; on error the zero shape goes out, matching what the dashboard
// renders for an unreadable host.
package monitor

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sync/errgroup"
)

// DefaultProcessLimit is how many processes the list endpoint returns
// when the caller gives no limit.
const DefaultProcessLimit = 10

// Metrics is the cpu/memory/power snapshot.
type Metrics struct {
	Timestamp      string  `json:"timestamp"`
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryPercent  float64 `json:"memory_percent"`
	MemoryUsedGB   float64 `json:"memory_used_gb"`
	MemoryTotalGB  float64 `json:"memory_total_gb"`
	BatteryPercent float64 `json:"battery_percent"`
	PowerPlugged   bool    `json:"power_plugged"`
}

// Process is one row of the top-process list.
type Process struct {
	PID           int32   `json:"pid"`
	Name          string  `json:"name"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// Disk is the primary-volume usage snapshot.
type Disk struct {
	TotalGB float64 `json:"total_gb"`
	UsedGB  float64 `json:"used_gb"`
	Percent float64 `json:"percent"`
}

// CollectMetrics samples cpu and memory. The cpu figure is the
// non-blocking delta since the previous call, so the first sample of a
// process reads zero. Battery state needs a sensors backend gopsutil
// does not expose; mains power is reported instead.
func CollectMetrics(ctx context.Context) Metrics {
	m := Metrics{
		Timestamp:      time.Now().Format("15:04:05"),
		BatteryPercent: 100,
		PowerPlugged:   true,
	}
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		m.CPUPercent = round2(percents[0])
	} else if err != nil {
		slog.Debug("monitor.cpu_failed", "error", err)
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		m.MemoryPercent = round2(vm.UsedPercent)
		m.MemoryUsedGB = toGB(vm.Used)
		m.MemoryTotalGB = toGB(vm.Total)
	} else {
		slog.Debug("monitor.memory_failed", "error", err)
	}
	return m
}

// TopProcesses lists the heaviest processes by cpu share. Inspection
// fans out over a bounded group since per-process reads dominate the
// wall time on big process tables. Processes that vanish or refuse
// inspection mid-scan are skipped.
func TopProcesses(ctx context.Context, limit int) []Process {
	if limit <= 0 {
		limit = DefaultProcessLimit
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		slog.Debug("monitor.process_scan_failed", "error", err)
		return []Process{}
	}

	scanned := make([]Process, len(procs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, p := range procs {
		g.Go(func() error {
			name, err := p.NameWithContext(gctx)
			if err != nil {
				return nil
			}
			cpuPct, err := p.CPUPercentWithContext(gctx)
			if err != nil {
				return nil
			}
			memPct, err := p.MemoryPercentWithContext(gctx)
			if err != nil {
				return nil
			}
			scanned[i] = Process{
				PID:           p.Pid,
				Name:          name,
				CPUPercent:    cpuPct,
				MemoryPercent: float64(memPct),
			}
			return nil
		})
	}
	g.Wait()

	// A zero PID marks a row whose process disappeared under us.
	rows := make([]Process, 0, len(scanned))
	for _, r := range scanned {
		if r.PID != 0 {
			rows = append(rows, r)
		}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].CPUPercent > rows[j].CPUPercent })
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

// DiskUsage reports the primary volume: C:\ on Windows, / elsewhere.
func DiskUsage(ctx context.Context) Disk {
	usage, err := disk.UsageWithContext(ctx, primaryVolume())
	if err != nil {
		slog.Debug("monitor.disk_failed", "error", err)
		return Disk{}
	}
	return Disk{
		TotalGB: toGB(usage.Total),
		UsedGB:  toGB(usage.Used),
		Percent: round2(usage.UsedPercent),
	}
}

func primaryVolume() string {
	if runtime.GOOS == "windows" {
		return `C:\`
	}
	return "/"
}

func toGB(bytes uint64) float64 {
	return round2(float64(bytes) / (1 << 30))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
