// Package hostcheck warns when the requested worker bound is likely more
// than the host can carry. It never blocks a run.
package hostcheck

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"
)

// Capacity describes the resources currently available on the host.
type Capacity struct {
	AvailableMB uint64
	LogicalCPUs int
}

// Probe reads host capacity.
type Probe func(ctx context.Context) (Capacity, error)

// SystemProbe reads capacity through gopsutil.
func SystemProbe(ctx context.Context) (Capacity, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Capacity{}, fmt.Errorf("read memory: %w", err)
	}
	cpus, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return Capacity{}, fmt.Errorf("count cpus: %w", err)
	}
	return Capacity{AvailableMB: vm.Available / (1 << 20), LogicalCPUs: cpus}, nil
}

// Advice is the outcome of a capacity check.
type Advice struct {
	Capacity  Capacity
	Workers   int
	NeededMB  uint64
	Warnings  []string
	Suggested int
}

// OK reports whether no warning was raised.
func (a Advice) OK() bool { return len(a.Warnings) == 0 }

// Check compares workers × budgetMB with the host and logs a warning for
// each shortfall. Probe failures are logged and yield an empty Advice.
func Check(ctx context.Context, probe Probe, workers, budgetMB int, logger *zap.Logger) Advice {
	if logger == nil {
		logger = zap.NewNop()
	}
	if probe == nil {
		probe = SystemProbe
	}
	advice := Advice{Workers: workers, Suggested: workers}
	capacity, err := probe(ctx)
	if err != nil {
		logger.Debug("host capacity unavailable", zap.Error(err))
		return advice
	}
	advice.Capacity = capacity
	if budgetMB > 0 && workers > 0 {
		advice.NeededMB = uint64(workers) * uint64(budgetMB)
		if advice.NeededMB > capacity.AvailableMB {
			advice.Warnings = append(advice.Warnings, fmt.Sprintf(
				"%d browsers need about %d MB, %d MB available", workers, advice.NeededMB, capacity.AvailableMB))
			advice.Suggested = max(1, int(capacity.AvailableMB/uint64(budgetMB)))
		}
	}
	if capacity.LogicalCPUs > 0 && workers > capacity.LogicalCPUs {
		advice.Warnings = append(advice.Warnings, fmt.Sprintf(
			"%d browsers on %d logical CPUs", workers, capacity.LogicalCPUs))
		advice.Suggested = min(advice.Suggested, capacity.LogicalCPUs)
	}
	for _, w := range advice.Warnings {
		logger.Warn("worker bound exceeds host capacity",
			zap.String("detail", w),
			zap.Int("workers", workers),
			zap.Int("suggested_workers", advice.Suggested),
		)
	}
	return advice
}
