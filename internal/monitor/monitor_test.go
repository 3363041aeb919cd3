package monitor

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/dispatch"
	"github.com/pulseguard/pulseguard/internal/event"
	"github.com/pulseguard/pulseguard/internal/metrics"
	"github.com/pulseguard/pulseguard/internal/rules"
	"github.com/pulseguard/pulseguard/internal/sink"
)

type recordSink struct {
	mu    sync.Mutex
	got   []event.AlertEvent
	fired chan struct{}
}

func newRecordSink() *recordSink {
	return &recordSink{fired: make(chan struct{}, 64)}
}

func (r *recordSink) Name() string { return "rec" }

func (r *recordSink) Send(_ context.Context, a event.AlertEvent) error {
	r.mu.Lock()
	r.got = append(r.got, a)
	r.mu.Unlock()
	r.fired <- struct{}{}
	return nil
}

func (r *recordSink) alerts() []event.AlertEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.AlertEvent(nil), r.got...)
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, nil))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// harness wires a Monitor to a recording sink through a real dispatcher.
func harness(t *testing.T, rcs []config.Rule) (*Monitor, *recordSink, func()) {
	t.Helper()
	set, err := rules.CompileSet(rcs)
	if err != nil {
		t.Fatal(err)
	}
	rec := newRecordSink()
	d := dispatch.New("test-host", map[string]sink.Sink{"rec": rec}, 64, quiet(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	cfg := &config.Config{MaxLineBytes: config.DefaultMaxLineBytes}
	return New(cfg, set, d, quiet(), nil), rec, cancel
}

func lineAt(at time.Time, line string) event.LogEvent {
	return event.LogEvent{
		SourceID:   "/var/log/app.log",
		SourceKind: event.KindFile,
		Line:       line,
		ObservedAt: at,
	}
}

func waitAlerts(t *testing.T, rec *recordSink, n int) []event.AlertEvent {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-rec.fired:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for alert %d/%d", i+1, n)
		}
	}
	return rec.alerts()
}

func TestHandleLine_CooldownSuppressesRepeat(t *testing.T) {
	cd := 60 * time.Second
	m, rec, stop := harness(t, []config.Rule{
		{Name: "errors", Pattern: "ERROR", Sinks: []string{"rec"}, Cooldown: &cd},
	})
	defer stop()

	base := time.Now()
	m.HandleLine(lineAt(base, "ERROR first"))
	m.HandleLine(lineAt(base.Add(time.Second), "ERROR second"))
	m.HandleLine(lineAt(base.Add(61*time.Second), "ERROR third"))

	got := waitAlerts(t, rec, 2)
	if len(got) != 2 {
		t.Fatalf("alerts = %d, want 2 (second match suppressed)", len(got))
	}
	if got[0].Name != "errors" || got[0].Identity != "test-host" {
		t.Errorf("alert = %+v", got[0])
	}
}

func TestHandleLine_FiresInOrderWithoutCooldown(t *testing.T) {
	zero := time.Duration(0)
	m, rec, stop := harness(t, []config.Rule{
		{Name: "fatal_errors", Pattern: "ERROR|FATAL", Sinks: []string{"rec"}, Cooldown: &zero},
	})
	defer stop()

	base := time.Now()
	m.HandleLine(lineAt(base, "ok"))
	m.HandleLine(lineAt(base.Add(time.Second), "ERROR x"))
	m.HandleLine(lineAt(base.Add(2*time.Second), "FATAL y"))

	got := waitAlerts(t, rec, 2)
	if len(got) != 2 {
		t.Fatalf("alerts = %d, want 2", len(got))
	}
	if got[0].Message != "/var/log/app.log: ERROR x" || got[1].Message != "/var/log/app.log: FATAL y" {
		t.Errorf("messages out of order: %q, %q", got[0].Message, got[1].Message)
	}
}

func TestHandleLine_ThresholdBurst(t *testing.T) {
	zero := time.Duration(0)
	m, rec, stop := harness(t, []config.Rule{
		{
			Name:      "timeouts",
			Text:      "timeout",
			Sinks:     []string{"rec"},
			Cooldown:  &zero,
			Threshold: &config.Threshold{Count: 3, Window: time.Second},
		},
	})
	defer stop()

	base := time.Now()
	// Matches at 0, 0.5, 1.0 fire on the third; 1.5 and 1.8 are a fresh
	// window of two and stay silent.
	for _, off := range []time.Duration{0, 500 * time.Millisecond, time.Second,
		1500 * time.Millisecond, 1800 * time.Millisecond} {
		m.HandleLine(lineAt(base.Add(off), "upstream timeout"))
	}

	got := waitAlerts(t, rec, 1)
	if len(got) != 1 {
		t.Fatalf("alerts = %d, want exactly 1", len(got))
	}
}

func TestHandleLine_ScopeKeepsStateUntouched(t *testing.T) {
	zero := time.Duration(0)
	m, rec, stop := harness(t, []config.Rule{
		{
			Name:     "api_errors",
			Text:     "ERROR",
			Sinks:    []string{"rec"},
			Cooldown: &zero,
			Sources: &config.RuleSources{
				Containers: []string{"api"},
			},
			Threshold: &config.Threshold{Count: 2, Window: time.Hour},
		},
	})
	defer stop()

	base := time.Now()
	// Out-of-scope matches must not count toward the threshold.
	m.HandleLine(lineAt(base, "ERROR from a file"))
	m.HandleLine(event.LogEvent{
		SourceID: "worker", SourceKind: event.KindContainer,
		Line: "ERROR out of scope", ObservedAt: base,
	})
	m.HandleLine(event.LogEvent{
		SourceID: "api", SourceKind: event.KindContainer,
		Line: "ERROR one", ObservedAt: base.Add(time.Second),
	})
	m.HandleLine(event.LogEvent{
		SourceID: "api", SourceKind: event.KindContainer,
		Line: "ERROR two", ObservedAt: base.Add(2 * time.Second),
	})

	got := waitAlerts(t, rec, 1)
	if len(got) != 1 {
		t.Fatalf("alerts = %d, want 1 (only in-scope matches count)", len(got))
	}
}

func TestHandleLine_MultipleRulesIndependent(t *testing.T) {
	zero := time.Duration(0)
	m, rec, stop := harness(t, []config.Rule{
		{Name: "a", Text: "alpha", Sinks: []string{"rec"}, Cooldown: &zero},
		{Name: "b", Text: "beta", Sinks: []string{"rec"}, Cooldown: &zero},
	})
	defer stop()

	m.HandleLine(lineAt(time.Now(), "alpha and beta in one line"))

	got := waitAlerts(t, rec, 2)
	names := map[string]bool{}
	for _, a := range got {
		names[a.Name] = true
	}
	if !names["a"] || !names["b"] {
		t.Errorf("fired rules = %v, want both a and b", names)
	}
}

func TestAdapters_BuildsAllKinds(t *testing.T) {
	cfg := &config.Config{
		Inputs: config.Inputs{
			Files:      []string{"/var/log/app.log"},
			Containers: []string{"api"},
			Streams: []config.StreamConfig{
				{Name: "feed", Type: "tcp", URL: "localhost:9000", ReconnectDelay: time.Second},
			},
		},
		MaxLineBytes: 1024,
	}
	m := New(cfg, &rules.Set{}, nil, quiet(), nil)

	adapters, err := m.Adapters()
	if err != nil {
		t.Fatalf("Adapters() error = %v", err)
	}
	if len(adapters) != 3 {
		t.Fatalf("len(adapters) = %d, want 3", len(adapters))
	}
}

func TestRun_TracksSourceConnectedGauge(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	hold := make(chan struct{})
	t.Cleanup(func() { close(hold) })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Write([]byte("hello\n"))
		<-hold
		conn.Close()
	}()

	reg := metrics.New()
	cfg := &config.Config{
		Inputs: config.Inputs{
			Streams: []config.StreamConfig{
				{Name: "sock", Type: "tcp", URL: ln.Addr().String(), ReconnectDelay: time.Hour},
			},
		},
		MaxLineBytes: 1024,
	}
	m := New(cfg, &rules.Set{}, nil, quiet(), reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	gauge := reg.SourceConnected.WithLabelValues("sock", "stream")
	deadline := time.Now().Add(5 * time.Second)
	for testutil.ToFloat64(gauge) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("source_connected never reached 1 while the stream was attached")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
