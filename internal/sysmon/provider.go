package sysmon

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot is one reading of host resource usage.
type Snapshot struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	MemoryUsedMB  float64   `json:"memory_used_mb"`
	MemoryTotalMB float64   `json:"memory_total_mb"`
	DiskPercent   float64   `json:"disk_percent"`
	DiskUsedGB    float64   `json:"disk_used_gb"`
	DiskTotalGB   float64   `json:"disk_total_gb"`
	Timestamp     time.Time `json:"timestamp"`
}

// Provider produces resource snapshots. The gopsutil provider is the default;
// tests substitute a canned one.
type Provider interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context) (Snapshot, error)

// Snapshot implements Provider.
func (f ProviderFunc) Snapshot(ctx context.Context) (Snapshot, error) { return f(ctx) }

// GopsutilProvider reads host metrics through gopsutil.
type GopsutilProvider struct {
	// DiskPath is the mount point sampled for disk usage. Defaults to "/".
	DiskPath string
}

// NewGopsutilProvider creates a provider sampling the root filesystem.
func NewGopsutilProvider() *GopsutilProvider {
	return &GopsutilProvider{DiskPath: "/"}
}

// Snapshot reads CPU, memory and disk usage. The CPU reading is the
// instantaneous percentage since the previous call, not a blocking sample.
func (p *GopsutilProvider) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Timestamp: time.Now()}

	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return snap, fmt.Errorf("sysmon: cpu sample: %w", err)
	}
	if len(cpuPercents) > 0 {
		snap.CPUPercent = cpuPercents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return snap, fmt.Errorf("sysmon: memory sample: %w", err)
	}
	snap.MemoryPercent = vm.UsedPercent
	snap.MemoryUsedMB = float64(vm.Used) / (1 << 20)
	snap.MemoryTotalMB = float64(vm.Total) / (1 << 20)

	path := p.DiskPath
	if path == "" {
		path = "/"
	}
	du, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return snap, fmt.Errorf("sysmon: disk sample: %w", err)
	}
	snap.DiskPercent = du.UsedPercent
	snap.DiskUsedGB = float64(du.Used) / (1 << 30)
	snap.DiskTotalGB = float64(du.Total) / (1 << 30)

	return snap, nil
}
