// Package dispatch decouples alert producers from sink delivery. Producers
// enqueue without blocking; a single drain goroutine delivers each queued
// alert with a bounded timeout. A full queue evicts the oldest alert so the
// newest information always gets through.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pulseguard/pulseguard/internal/event"
	"github.com/pulseguard/pulseguard/internal/metrics"
	"github.com/pulseguard/pulseguard/internal/sink"
)

const deliverTimeout = 15 * time.Second

// Dispatcher fans alerts out to their target sinks.
type Dispatcher struct {
	identity string
	sinks    map[string]sink.Sink
	buf      chan event.AlertEvent
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// New creates a Dispatcher with the given queue depth.
func New(identity string, sinks map[string]sink.Sink, queueSize int, log *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		identity: identity,
		sinks:    sinks,
		buf:      make(chan event.AlertEvent, queueSize),
		log:      log,
		metrics:  m,
	}
}

// Dispatch enqueues one delivery per target sink. It never blocks: when the
// queue is full the oldest pending delivery is evicted to make room.
func (d *Dispatcher) Dispatch(name, message string, sinks []string) {
	firedAt := time.Now().UTC()
	for _, target := range sinks {
		ev := event.AlertEvent{
			ID:       uuid.NewString(),
			Name:     name,
			Message:  message,
			Identity: d.identity,
			Sink:     target,
			FiredAt:  firedAt,
		}
		d.enqueue(ev)
	}
}

func (d *Dispatcher) enqueue(ev event.AlertEvent) {
	select {
	case d.buf <- ev:
	default:
		select {
		case dropped := <-d.buf:
			d.log.Warn("alert queue full, evicted oldest",
				"dropped_alert", dropped.Name, "dropped_sink", dropped.Sink, "queue_cap", cap(d.buf))
			if d.metrics != nil {
				d.metrics.AlertsTotal.WithLabelValues(dropped.Sink, "dropped").Inc()
			}
		default:
		}
		d.buf <- ev
	}
}

// Run drains the queue until the context is cancelled. Delivery failures are
// logged and never retried; the next alert proceeds regardless.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.buf:
			d.deliver(ctx, ev)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev event.AlertEvent) {
	s, ok := d.sinks[ev.Sink]
	if !ok {
		d.log.Error("alert references unknown sink", "alert", ev.Name, "sink", ev.Sink)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, deliverTimeout)
	err := s.Send(sendCtx, ev)
	cancel()

	if err != nil {
		d.log.Error("alert delivery failed",
			"alert", ev.Name, "sink", ev.Sink, "id", ev.ID, "error", err)
		if d.metrics != nil {
			d.metrics.AlertsTotal.WithLabelValues(ev.Sink, "error").Inc()
		}
		return
	}
	d.log.Info("alert delivered", "alert", ev.Name, "sink", ev.Sink, "id", ev.ID)
	if d.metrics != nil {
		d.metrics.AlertsTotal.WithLabelValues(ev.Sink, "ok").Inc()
	}
}
