// Package health samples host resource usage for the display sinks (the
// console line, the TUI footer and the status page), grounded on the
// teacher's identical gopsutil usage in its TUI (internal/cli/ui/ui.go).
// No part of the daemon stops on a low-memory sample.
package health

import (
	"context"
	"fmt"

	psutilcpu "github.com/shirou/gopsutil/v3/cpu"
	psutilmem "github.com/shirou/gopsutil/v3/mem"
)

// Snapshot is one point-in-time sample of host resource usage.
type Snapshot struct {
	CPUPercent   float64
	MemUsedBytes uint64
	MemTotal     uint64
}

// Sample takes a single, non-blocking-ish snapshot (cpu.Percent with a
// zero interval returns the usage since the previous call).
func Sample(ctx context.Context) (Snapshot, error) {
	pcts, err := psutilcpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return Snapshot{}, fmt.Errorf("health: cpu sample: %w", err)
	}
	vm, err := psutilmem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("health: mem sample: %w", err)
	}
	cpuPct := 0.0
	if len(pcts) > 0 {
		cpuPct = pcts[0]
	}
	return Snapshot{
		CPUPercent:   cpuPct,
		MemUsedBytes: vm.Used,
		MemTotal:     vm.Total,
	}, nil
}

// LowMemory reports whether the fraction of total memory still free has
// fallen below minFreeFraction. The processor does not call it.
func (s Snapshot) LowMemory(minFreeFraction float64) bool {
	if s.MemTotal == 0 {
		return false
	}
	free := s.MemTotal - s.MemUsedBytes
	return float64(free)/float64(s.MemTotal) < minFreeFraction
}
