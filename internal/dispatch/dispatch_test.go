package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pulseguard/pulseguard/internal/event"
	"github.com/pulseguard/pulseguard/internal/sink"
)

// recordSink collects delivered alerts and optionally fails.
type recordSink struct {
	mu    sync.Mutex
	name  string
	got   []event.AlertEvent
	fail  bool
	fired chan struct{}
}

func newRecordSink(name string) *recordSink {
	return &recordSink{name: name, fired: make(chan struct{}, 64)}
}

func (r *recordSink) Name() string { return r.name }

func (r *recordSink) Send(_ context.Context, a event.AlertEvent) error {
	r.mu.Lock()
	r.got = append(r.got, a)
	r.mu.Unlock()
	r.fired <- struct{}{}
	if r.fail {
		return errors.New("delivery refused")
	}
	return nil
}

func (r *recordSink) alerts() []event.AlertEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.AlertEvent(nil), r.got...)
}

func waitFired(t *testing.T, r *recordSink, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.fired:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for delivery %d/%d", i+1, n)
		}
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestDispatch_FanOut(t *testing.T) {
	a := newRecordSink("a")
	b := newRecordSink("b")
	d := New("web-01", map[string]sink.Sink{"a": a, "b": b}, 16, discard(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Dispatch("errors", "something broke", []string{"a", "b"})
	waitFired(t, a, 1)
	waitFired(t, b, 1)

	gotA, gotB := a.alerts(), b.alerts()
	if len(gotA) != 1 || len(gotB) != 1 {
		t.Fatalf("deliveries = %d, %d, want 1 each", len(gotA), len(gotB))
	}
	if gotA[0].Identity != "web-01" || gotA[0].Name != "errors" {
		t.Errorf("alert = %+v", gotA[0])
	}
	if gotA[0].ID == gotB[0].ID {
		t.Error("each delivery should carry its own id")
	}
	if gotA[0].Sink != "a" || gotB[0].Sink != "b" {
		t.Errorf("sinks = %q, %q", gotA[0].Sink, gotB[0].Sink)
	}
}

func TestDispatch_FailingSinkDoesNotBlockOthers(t *testing.T) {
	bad := newRecordSink("bad")
	bad.fail = true
	good := newRecordSink("good")
	d := New("web-01", map[string]sink.Sink{"bad": bad, "good": good}, 16, discard(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Dispatch("errors", "m1", []string{"bad", "good"})
	d.Dispatch("errors", "m2", []string{"good"})
	waitFired(t, good, 2)

	if got := good.alerts(); len(got) != 2 {
		t.Fatalf("good deliveries = %d, want 2", len(got))
	}
}

func TestEnqueue_EvictsOldestWhenFull(t *testing.T) {
	s := newRecordSink("s")
	d := New("web-01", map[string]sink.Sink{"s": s}, 2, discard(), nil)

	// No drain goroutine yet: fill the queue past capacity.
	d.Dispatch("first", "1", []string{"s"})
	d.Dispatch("second", "2", []string{"s"})
	d.Dispatch("third", "3", []string{"s"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)
	waitFired(t, s, 2)

	got := s.alerts()
	if len(got) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(got))
	}
	if got[0].Name != "second" || got[1].Name != "third" {
		t.Errorf("kept alerts = %q, %q, want the two newest", got[0].Name, got[1].Name)
	}
}

func TestDispatch_UnknownSinkIsSkipped(t *testing.T) {
	s := newRecordSink("s")
	d := New("web-01", map[string]sink.Sink{"s": s}, 16, discard(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Dispatch("errors", "m", []string{"nosuch", "s"})
	waitFired(t, s, 1)

	if got := s.alerts(); len(got) != 1 || got[0].Sink != "s" {
		t.Fatalf("deliveries = %+v", got)
	}
}
