// Package sysinfo reports host resource usage for the admin health
// endpoint. The teacher's infrastructure/middleware/health.go reports
// only Go runtime stats (goroutines, heap); this extends that with
// actual host CPU/memory figures via gopsutil, the way a broker that
// itself allocates finite capacity would want visibility into the
// capacity of the box it runs on.
package sysinfo

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Stats is a point-in-time snapshot of host and process resource usage.
type Stats struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemUsedMB   uint64  `json:"mem_used_mb"`
	MemTotalMB  uint64  `json:"mem_total_mb"`
	MemPercent  float64 `json:"mem_percent"`
	NumCPU      int     `json:"num_cpu"`
	Goroutines  int     `json:"goroutines"`
}

// Snapshot samples current host CPU/memory usage. Collection failures are
// reported as zeroed fields rather than propagated: the admin health
// endpoint should never fail to respond because a gopsutil syscall did.
func Snapshot() Stats {
	stats := Stats{NumCPU: runtime.NumCPU(), Goroutines: runtime.NumGoroutine()}

	if percents, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percents) > 0 {
		stats.CPUPercent = percents[0]
	}

	if vmem, err := mem.VirtualMemory(); err == nil {
		stats.MemUsedMB = vmem.Used / 1024 / 1024
		stats.MemTotalMB = vmem.Total / 1024 / 1024
		stats.MemPercent = vmem.UsedPercent
	}

	return stats
}
