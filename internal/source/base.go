// Package source implements the log source adapters: file tailing, Docker
// container logs, and network streams (websocket, HTTP, TCP). Every adapter
// normalizes its input into LogEvents and reconnects with a fixed delay
// after any failure; adapters never give up while the context is alive.
package source

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pulseguard/pulseguard/internal/event"
)

// Adapter is one running log source. Run blocks until the context is
// cancelled, reconnecting internally on every failure.
type Adapter interface {
	Descriptor() Descriptor
	Run(ctx context.Context, out chan<- event.LogEvent) error
}

// Descriptor identifies an adapter for rule scoping, logging, and alerts.
type Descriptor struct {
	ID   string
	Kind event.SourceKind
}

// Options carries the settings shared by every adapter.
type Options struct {
	// MaxLineBytes truncates any line longer than this before it is
	// emitted. Zero disables truncation.
	MaxLineBytes int

	// ReconnectDelay is the fixed wait between connection attempts.
	ReconnectDelay time.Duration

	// Status, when set, receives transport attach and detach transitions.
	Status func(desc Descriptor, connected bool)

	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) setStatus(desc Descriptor, connected bool) {
	if o.Status != nil {
		o.Status(desc, connected)
	}
}

// runLoop runs connect until the context is cancelled, waiting the fixed
// reconnect delay after each return. connect is expected to block while the
// source is healthy.
func runLoop(ctx context.Context, log *slog.Logger, desc Descriptor, delay time.Duration, connect func(context.Context) error) error {
	for {
		err := connect(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			log.Warn("source disconnected",
				"source", desc.ID, "kind", desc.Kind, "error", err, "retry_in", delay)
		} else {
			log.Warn("source stream ended",
				"source", desc.ID, "kind", desc.Kind, "retry_in", delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// emit hands one bounded line to the coordinator. It returns false when the
// context was cancelled before the line could be delivered.
func emit(ctx context.Context, out chan<- event.LogEvent, desc Descriptor, line string, maxLine int) bool {
	if maxLine > 0 && len(line) > maxLine {
		line = line[:maxLine]
	}
	select {
	case out <- event.LogEvent{
		SourceID:   desc.ID,
		SourceKind: desc.Kind,
		Line:       line,
		ObservedAt: time.Now().UTC(),
	}:
		return true
	case <-ctx.Done():
		return false
	}
}

// readLine reads one newline-terminated line from br, retaining at most
// maxLine bytes. n counts every byte consumed, including the newline and
// anything read past the cap, so callers can account for file offsets.
// maxLine <= 0 retains the whole line.
func readLine(br *bufio.Reader, maxLine int) (line []byte, n int, err error) {
	for {
		chunk, cerr := br.ReadSlice('\n')
		n += len(chunk)
		if maxLine <= 0 || len(line) < maxLine {
			line = append(line, chunk...)
			if maxLine > 0 && len(line) > maxLine {
				line = line[:maxLine]
			}
		}
		if cerr == bufio.ErrBufferFull {
			continue
		}
		return line, n, cerr
	}
}

// discardLine consumes input through the next newline without retaining it.
func discardLine(br *bufio.Reader) (n int, err error) {
	for {
		chunk, cerr := br.ReadSlice('\n')
		n += len(chunk)
		if cerr == bufio.ErrBufferFull {
			continue
		}
		return n, cerr
	}
}

// scanLines reads r line by line and emits every line until EOF or a read
// error. Trailing carriage returns are stripped; empty lines are skipped.
// At most maxLine bytes of any line are held in memory; the excess is read
// in bounded chunks and dropped, so a line that never ends cannot grow the
// process with it.
func scanLines(ctx context.Context, r io.Reader, out chan<- event.LogEvent, desc Descriptor, maxLine int) error {
	br := bufio.NewReader(r)
	for {
		raw, _, err := readLine(br, maxLine)
		line := strings.TrimRight(string(raw), "\r\n")
		if line != "" {
			if !emit(ctx, out, desc, line, maxLine) {
				return ctx.Err()
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
