package source

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/event"
)

func collect(t *testing.T, out <-chan event.LogEvent, n int, timeout time.Duration) []event.LogEvent {
	t.Helper()
	var got []event.LogEvent
	deadline := time.After(timeout)
	for len(got) < n {
		select {
		case ev := <-out:
			got = append(got, ev)
		case <-deadline:
			t.Fatalf("timed out after %v with %d/%d events", timeout, len(got), n)
		}
	}
	return got
}

func TestScanLines_BoundsAndSkipsEmpty(t *testing.T) {
	input := "short\r\n\n" + strings.Repeat("x", 100) + "\nlast\n"
	out := make(chan event.LogEvent, 8)
	desc := Descriptor{ID: "test", Kind: event.KindStream}

	if err := scanLines(context.Background(), strings.NewReader(input), out, desc, 10); err != nil {
		t.Fatalf("scanLines() error = %v", err)
	}
	close(out)

	var lines []string
	for ev := range out {
		lines = append(lines, ev.Line)
	}
	want := []string{"short", strings.Repeat("x", 10), "last"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("lines[%d] = %q, want %q", i, lines[i], want[i])
		}
	}
}

// repeatReader yields size bytes of 'x' with a newline as the last byte,
// without ever materializing the whole line.
type repeatReader struct {
	remaining int
}

func (r *repeatReader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, io.EOF
	}
	n := len(p)
	if n > r.remaining {
		n = r.remaining
	}
	for i := 0; i < n; i++ {
		p[i] = 'x'
	}
	r.remaining -= n
	if r.remaining == 0 {
		p[n-1] = '\n'
	}
	return n, nil
}

func TestReadLine_MemoryBoundedByCap(t *testing.T) {
	const total = 8 << 20
	br := bufio.NewReader(&repeatReader{remaining: total})

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	line, n, err := readLine(br, 1024)
	runtime.ReadMemStats(&after)

	if err != nil {
		t.Fatalf("readLine() error = %v", err)
	}
	if len(line) != 1024 {
		t.Errorf("len(line) = %d, want 1024", len(line))
	}
	if n != total {
		t.Errorf("consumed = %d, want %d", n, total)
	}
	if grown := after.TotalAlloc - before.TotalAlloc; grown > 1<<20 {
		t.Errorf("allocated %d bytes for a capped line; retention must not scale with input", grown)
	}
}

func TestFileTailer_OversizedLineCappedAndSkipped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	// An unfinished line far beyond the cap.
	if err := os.WriteFile(path, []byte(strings.Repeat("x", 10000)), 0o644); err != nil {
		t.Fatal(err)
	}

	tailer := NewFile(path, Options{MaxLineBytes: 64}).(*fileTailer)
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	out := make(chan event.LogEvent, 8)
	var offset int64

	if err := tailer.drain(context.Background(), f, &offset, out); err != nil {
		t.Fatalf("drain() error = %v", err)
	}
	select {
	case ev := <-out:
		if len(ev.Line) != 64 {
			t.Errorf("len(Line) = %d, want the 64-byte cap", len(ev.Line))
		}
	default:
		t.Fatal("capped head of the oversized line was not emitted")
	}
	if offset != 10000 {
		t.Errorf("offset = %d, want 10000", offset)
	}

	// The tail of the oversized line is dropped; the next line is normal.
	af, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := af.WriteString("yyy\nnormal\n"); err != nil {
		t.Fatal(err)
	}
	af.Close()

	if err := tailer.drain(context.Background(), f, &offset, out); err != nil {
		t.Fatalf("drain() error = %v", err)
	}
	select {
	case ev := <-out:
		if ev.Line != "normal" {
			t.Errorf("Line = %q, want %q", ev.Line, "normal")
		}
	default:
		t.Fatal("line after the oversized one was not emitted")
	}
	select {
	case ev := <-out:
		t.Fatalf("unexpected extra event %q", ev.Line)
	default:
	}
}

func TestFileTailer_SkipsExistingContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	if err := os.WriteFile(path, []byte("old line\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan event.LogEvent, 8)

	tailer := NewFile(path, Options{MaxLineBytes: 1024})
	go tailer.Run(ctx, out)

	// Give the tailer a moment to open and seek to the end.
	time.Sleep(200 * time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("new line\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got := collect(t, out, 1, 5*time.Second)
	if got[0].Line != "new line" {
		t.Errorf("Line = %q, want %q", got[0].Line, "new line")
	}
	if got[0].SourceKind != event.KindFile || got[0].SourceID != path {
		t.Errorf("event source = %s %q", got[0].SourceKind, got[0].SourceID)
	}
}

func TestFileTailer_TruncationRewinds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	if err := os.WriteFile(path, []byte("aaaa\nbbbb\ncccc\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan event.LogEvent, 8)

	tailer := NewFile(path, Options{MaxLineBytes: 1024})
	go tailer.Run(ctx, out)
	time.Sleep(200 * time.Millisecond)

	// Truncate and write shorter content; the tailer should rewind and
	// pick up the fresh line.
	if err := os.WriteFile(path, []byte("fresh\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := collect(t, out, 1, 5*time.Second)
	if got[0].Line != "fresh" {
		t.Errorf("Line = %q, want %q", got[0].Line, "fresh")
	}
}

func TestFileTailer_WaitsForMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "later.log")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan event.LogEvent, 8)

	tailer := NewFile(path, Options{MaxLineBytes: 1024})
	go tailer.Run(ctx, out)
	time.Sleep(200 * time.Millisecond)

	if err := os.WriteFile(path, []byte("appeared\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := collect(t, out, 1, 5*time.Second)
	if got[0].Line != "appeared" {
		t.Errorf("Line = %q, want %q", got[0].Line, "appeared")
	}
}

func TestFileTailer_ReopenHonorsReconnectDelay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slow.log")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan event.LogEvent, 8)

	tailer := NewFile(path, Options{MaxLineBytes: 1024, ReconnectDelay: time.Hour})
	go tailer.Run(ctx, out)

	// Let the first open attempt fail, then create the file. The next
	// attempt is due a full reconnect delay later, so nothing is read.
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(path, []byte("too soon\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-out:
		t.Fatalf("got %q before the reconnect delay elapsed", ev.Line)
	case <-time.After(600 * time.Millisecond):
	}
}

func TestStream_TCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Write([]byte("tcp line one\ntcp line two\n"))
		conn.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan event.LogEvent, 8)

	adapter := NewStream(config.StreamConfig{
		Name: "sock",
		Type: "tcp",
		URL:  "tcp://" + ln.Addr().String(),
	}, Options{MaxLineBytes: 1024, ReconnectDelay: time.Hour})
	go adapter.Run(ctx, out)

	got := collect(t, out, 2, 5*time.Second)
	if got[0].Line != "tcp line one" || got[1].Line != "tcp line two" {
		t.Errorf("lines = %q, %q", got[0].Line, got[1].Line)
	}
	if got[0].SourceID != "sock" || got[0].SourceKind != event.KindStream {
		t.Errorf("event source = %s %q", got[0].SourceKind, got[0].SourceID)
	}
}

func TestStream_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("http line one\nhttp line two\n"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan event.LogEvent, 8)

	adapter := NewStream(config.StreamConfig{
		Name: "feed",
		Type: "http",
		URL:  srv.URL,
	}, Options{MaxLineBytes: 1024, ReconnectDelay: time.Hour})
	go adapter.Run(ctx, out)

	got := collect(t, out, 2, 5*time.Second)
	if got[0].Line != "http line one" || got[1].Line != "http line two" {
		t.Errorf("lines = %q, %q", got[0].Line, got[1].Line)
	}
}

func TestStream_ReportsStatusTransitions(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Write([]byte("one line\n"))
		conn.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan event.LogEvent, 8)
	status := make(chan bool, 4)

	adapter := NewStream(config.StreamConfig{
		Name: "sock",
		Type: "tcp",
		URL:  ln.Addr().String(),
	}, Options{
		MaxLineBytes:   1024,
		ReconnectDelay: time.Hour,
		Status:         func(_ Descriptor, connected bool) { status <- connected },
	})
	go adapter.Run(ctx, out)

	collect(t, out, 1, 5*time.Second)
	for i, want := range []bool{true, false} {
		select {
		case got := <-status:
			if got != want {
				t.Errorf("status[%d] = %v, want %v", i, got, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for status transition %d", i)
		}
	}
}

func TestStream_ReconnectDelayOverride(t *testing.T) {
	a := NewStream(config.StreamConfig{
		Type:           "tcp",
		URL:            "localhost:1",
		ReconnectDelay: 250 * time.Millisecond,
	}, Options{ReconnectDelay: time.Hour}).(*streamAdapter)
	if a.opts.ReconnectDelay != 250*time.Millisecond {
		t.Errorf("ReconnectDelay = %v, want per-stream 250ms", a.opts.ReconnectDelay)
	}
}

func TestStream_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			// Hold the connection open, never write.
			defer conn.Close()
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan event.LogEvent, 1)

	adapter := NewStream(config.StreamConfig{
		Type: "tcp",
		URL:  ln.Addr().String(),
	}, Options{ReconnectDelay: 10 * time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- adapter.Run(ctx, out) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
