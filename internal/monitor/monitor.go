// Package monitor runs the log pipeline: it starts one goroutine per source
// adapter, funnels their lines through a single channel, and evaluates every
// line against the rule set. Matches that pass the firing gate are handed to
// the dispatcher.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/dispatch"
	"github.com/pulseguard/pulseguard/internal/event"
	"github.com/pulseguard/pulseguard/internal/metrics"
	"github.com/pulseguard/pulseguard/internal/rules"
	"github.com/pulseguard/pulseguard/internal/source"
)

// Monitor coordinates source adapters and rule evaluation.
type Monitor struct {
	cfg        *config.Config
	set        *rules.Set
	dispatcher *dispatch.Dispatcher
	log        *slog.Logger
	metrics    *metrics.Metrics
}

// New builds a Monitor. The rule set must already be compiled.
func New(cfg *config.Config, set *rules.Set, d *dispatch.Dispatcher, log *slog.Logger, m *metrics.Metrics) *Monitor {
	return &Monitor{cfg: cfg, set: set, dispatcher: d, log: log, metrics: m}
}

// Adapters builds one adapter per configured source, expanding file globs.
func (m *Monitor) Adapters() ([]source.Adapter, error) {
	opts := source.Options{
		MaxLineBytes:   m.cfg.MaxLineBytes,
		ReconnectDelay: config.DefaultReconnectDelay,
		Logger:         m.log,
	}
	if m.metrics != nil {
		mm := m.metrics
		opts.Status = func(desc source.Descriptor, connected bool) {
			v := 0.0
			if connected {
				v = 1
			}
			mm.SourceConnected.WithLabelValues(desc.ID, string(desc.Kind)).Set(v)
		}
	}

	paths, err := m.cfg.ExpandFiles()
	if err != nil {
		return nil, err
	}

	var adapters []source.Adapter
	for _, p := range paths {
		adapters = append(adapters, source.NewFile(p, opts))
	}
	for _, c := range m.cfg.Inputs.Containers {
		adapters = append(adapters, source.NewContainer(c, opts))
	}
	for _, sc := range m.cfg.Inputs.Streams {
		adapters = append(adapters, source.NewStream(sc, opts))
	}
	return adapters, nil
}

// Run starts every adapter and processes lines until the context is
// cancelled. It returns early only when no adapter could be built.
func (m *Monitor) Run(ctx context.Context) error {
	adapters, err := m.Adapters()
	if err != nil {
		return fmt.Errorf("monitor: build sources: %w", err)
	}
	if len(adapters) == 0 && len(m.set.Rules) > 0 {
		m.log.Warn("rules configured but no log sources to watch")
	}

	out := make(chan event.LogEvent, 256)

	var wg sync.WaitGroup
	for _, a := range adapters {
		desc := a.Descriptor()
		m.log.Info("starting source", "source", desc.ID, "kind", desc.Kind)
		wg.Add(1)
		go func(a source.Adapter) {
			defer wg.Done()
			a.Run(ctx, out)
		}(a)
	}

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case ev := <-out:
			m.HandleLine(ev)
		}
	}
}

// HandleLine evaluates one line against every rule. Scope is checked before
// the pattern so out-of-scope matches never touch a rule's firing state.
func (m *Monitor) HandleLine(ev event.LogEvent) {
	if m.metrics != nil {
		m.metrics.LinesTotal.WithLabelValues(ev.SourceID, string(ev.SourceKind)).Inc()
	}

	for _, r := range m.set.Rules {
		if !r.InScope(ev.SourceKind, ev.SourceID) {
			continue
		}
		if !r.Matches(ev.Line) {
			continue
		}
		if m.metrics != nil {
			m.metrics.MatchesTotal.WithLabelValues(r.Name).Inc()
		}
		if !r.Observe(ev.ObservedAt) {
			m.log.Debug("match suppressed",
				"rule", r.Name, "source", ev.SourceID)
			continue
		}

		msg := fmt.Sprintf("%s: %s", ev.SourceID, ev.Line)
		m.log.Info("rule fired", "rule", r.Name, "source", ev.SourceID)
		m.dispatcher.Dispatch(r.Name, msg, r.Sinks)
	}
}
