// Package sysinfo samples host resource usage for the system status
// endpoint, using shirou/gopsutil for CPU, memory, and disk sampling.
package sysinfo

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot is a point-in-time host resource sample.
type Snapshot struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryUsedMB  uint64    `json:"memory_used_mb"`
	MemoryTotalMB uint64    `json:"memory_total_mb"`
	MemoryPercent float64   `json:"memory_percent"`
	DiskUsedGB    float64   `json:"disk_used_gb"`
	DiskTotalGB   float64   `json:"disk_total_gb"`
	DiskPercent   float64   `json:"disk_percent"`
	SampledAt     time.Time `json:"sampled_at"`
}

// Sample collects one Snapshot, rooted at dataDir for the disk usage check.
func Sample(ctx context.Context, dataDir string) (Snapshot, error) {
	cpuPercents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to sample cpu: %w", err)
	}
	var cpuPct float64
	if len(cpuPercents) > 0 {
		cpuPct = cpuPercents[0]
	}

	vmem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to sample memory: %w", err)
	}

	diskUsage, err := disk.UsageWithContext(ctx, dataDir)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to sample disk: %w", err)
	}

	const mb = 1024 * 1024
	const gb = 1024 * 1024 * 1024

	return Snapshot{
		CPUPercent:    cpuPct,
		MemoryUsedMB:  vmem.Used / mb,
		MemoryTotalMB: vmem.Total / mb,
		MemoryPercent: vmem.UsedPercent,
		DiskUsedGB:    float64(diskUsage.Used) / gb,
		DiskTotalGB:   float64(diskUsage.Total) / gb,
		DiskPercent:   diskUsage.UsedPercent,
		SampledAt:     time.Now().UTC(),
	}, nil
}
