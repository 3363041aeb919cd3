// Package resource samples host CPU, memory, and disk usage on an interval
// and alerts when a configured threshold is crossed. Each metric has its own
// cooldown of six sampling intervals so a persistently hot host nags
// periodically instead of every sample.
package resource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/dispatch"
	"github.com/pulseguard/pulseguard/internal/limiter"
)

// cooldownIntervals is how many sampling intervals pass between repeated
// alerts for the same metric while it stays over threshold.
const cooldownIntervals = 6

// Sample is one point-in-time reading of host usage percentages.
type Sample struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
}

// sampleFunc collects one Sample. Injectable for tests.
type sampleFunc func(ctx context.Context) (Sample, error)

// Watcher owns the sampling loop and per-metric alert state.
type Watcher struct {
	cfg        config.ResourceConfig
	dispatcher *dispatch.Dispatcher
	log        *slog.Logger
	sample     sampleFunc

	cpuState  limiter.State
	memState  limiter.State
	diskState limiter.State
}

// New builds a Watcher from the resources config block.
func New(cfg config.ResourceConfig, d *dispatch.Dispatcher, log *slog.Logger) *Watcher {
	return &Watcher{cfg: cfg, dispatcher: d, log: log, sample: collect}
}

// Run samples on the configured interval until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	w.log.Info("starting resource monitor", "interval", w.cfg.Interval)
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s, err := w.sample(ctx)
			if err != nil {
				w.log.Warn("resource sample failed", "error", err)
				continue
			}
			w.evaluate(time.Now(), s)
		}
	}
}

// evaluate checks every enabled threshold against the sample.
func (w *Watcher) evaluate(now time.Time, s Sample) {
	cooldown := time.Duration(cooldownIntervals) * w.cfg.Interval

	if w.cfg.CPUPercent != nil && s.CPUPercent >= *w.cfg.CPUPercent {
		if w.cpuState.Observe(now, nil, cooldown) {
			w.alert("high_cpu", fmt.Sprintf("CPU usage %.1f%% (threshold %.1f%%)",
				s.CPUPercent, *w.cfg.CPUPercent))
		}
	}
	if w.cfg.MemoryPercent != nil && s.MemoryPercent >= *w.cfg.MemoryPercent {
		if w.memState.Observe(now, nil, cooldown) {
			w.alert("high_memory", fmt.Sprintf("memory usage %.1f%% (threshold %.1f%%)",
				s.MemoryPercent, *w.cfg.MemoryPercent))
		}
	}
	if w.cfg.DiskPercent != nil && s.DiskPercent >= *w.cfg.DiskPercent {
		if w.diskState.Observe(now, nil, cooldown) {
			w.alert("high_disk", fmt.Sprintf("disk usage %.1f%% (threshold %.1f%%)",
				s.DiskPercent, *w.cfg.DiskPercent))
		}
	}
}

func (w *Watcher) alert(name, msg string) {
	w.log.Warn("resource threshold crossed", "metric", name, "detail", msg)
	w.dispatcher.Dispatch(name, msg, w.cfg.Sinks)
}

// collect reads current host usage. CPU is measured over a short window
// because instantaneous CPU percent is meaningless.
func collect(ctx context.Context) (Sample, error) {
	var s Sample

	cpuPcts, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err != nil {
		return s, fmt.Errorf("sample cpu: %w", err)
	}
	if len(cpuPcts) > 0 {
		s.CPUPercent = cpuPcts[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return s, fmt.Errorf("sample memory: %w", err)
	}
	s.MemoryPercent = vm.UsedPercent

	du, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return s, fmt.Errorf("sample disk: %w", err)
	}
	s.DiskPercent = du.UsedPercent

	return s, nil
}
