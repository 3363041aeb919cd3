// Package metrics exposes the process's own Prometheus telemetry: line
// throughput, rule matches, alert deliveries, and check states. The
// /metrics endpoint is optional and off unless a listen address is
// configured.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector, registered on its own registry so the
// endpoint serves only what this process exports.
type Metrics struct {
	registry *prometheus.Registry

	LinesTotal      *prometheus.CounterVec
	MatchesTotal    *prometheus.CounterVec
	AlertsTotal     *prometheus.CounterVec
	CheckUp         *prometheus.GaugeVec
	SourceConnected *prometheus.GaugeVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LinesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pulseguard",
				Name:      "lines_total",
				Help:      "Lines ingested per source.",
			},
			[]string{"source", "kind"},
		),
		MatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pulseguard",
				Name:      "matches_total",
				Help:      "Rule matches, counted before cooldown and threshold gating.",
			},
			[]string{"rule"},
		),
		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pulseguard",
				Name:      "alerts_total",
				Help:      "Alert deliveries per sink and outcome.",
			},
			[]string{"sink", "status"},
		),
		CheckUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "pulseguard",
				Name:      "check_up",
				Help:      "Health check state: 1 up, 0 down, absent while unknown.",
			},
			[]string{"check"},
		),
		SourceConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "pulseguard",
				Name:      "source_connected",
				Help:      "Whether a source is currently attached: 1 or 0.",
			},
			[]string{"source", "kind"},
		),
	}

	m.registry.MustRegister(
		m.LinesTotal, m.MatchesTotal, m.AlertsTotal, m.CheckUp, m.SourceConnected,
	)
	return m
}

// Serve runs the /metrics endpoint on addr until the context is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("metrics endpoint listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
