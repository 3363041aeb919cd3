package source

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/event"
)

// streamAdapter connects to a network line source: a websocket feed, a
// streaming HTTP response, or a raw TCP socket.
type streamAdapter struct {
	cfg  config.StreamConfig
	opts Options
}

// NewStream returns an adapter for the configured network stream.
func NewStream(cfg config.StreamConfig, opts Options) Adapter {
	if cfg.ReconnectDelay > 0 {
		opts.ReconnectDelay = cfg.ReconnectDelay
	}
	return &streamAdapter{cfg: cfg, opts: opts}
}

func (s *streamAdapter) Descriptor() Descriptor {
	return Descriptor{ID: s.cfg.EffectiveName(), Kind: event.KindStream}
}

func (s *streamAdapter) Run(ctx context.Context, out chan<- event.LogEvent) error {
	var connect func(context.Context) error
	switch s.cfg.Type {
	case "websocket":
		connect = func(ctx context.Context) error { return s.readWebsocket(ctx, out) }
	case "http":
		connect = func(ctx context.Context) error { return s.readHTTP(ctx, out) }
	case "tcp":
		connect = func(ctx context.Context) error { return s.readTCP(ctx, out) }
	default:
		return fmt.Errorf("stream %q: unsupported type %q", s.cfg.EffectiveName(), s.cfg.Type)
	}
	return runLoop(ctx, s.opts.logger(), s.Descriptor(), s.opts.ReconnectDelay, connect)
}

// readWebsocket holds one websocket connection open and emits each text
// message as one or more lines. Messages containing newlines are split.
func (s *streamAdapter) readWebsocket(ctx context.Context, out chan<- event.LogEvent) error {
	header := http.Header{}
	for k, v := range s.cfg.Headers {
		header.Set(k, v)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial websocket: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()
	s.opts.setStatus(s.Descriptor(), true)
	defer s.opts.setStatus(s.Descriptor(), false)
	s.opts.logger().Info("stream connected", "stream", s.cfg.EffectiveName(), "type", "websocket")

	// ReadMessage has no context; closing the connection unblocks it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}
		for _, line := range strings.Split(string(msg), "\n") {
			line = strings.TrimRight(line, "\r")
			if line == "" {
				continue
			}
			if !emit(ctx, out, s.Descriptor(), line, s.opts.MaxLineBytes) {
				return ctx.Err()
			}
		}
	}
}

// readHTTP holds a streaming GET open and emits each body line. The client
// carries no overall timeout; cancellation comes from the request context.
func (s *streamAdapter) readHTTP(ctx context.Context, out chan<- event.LogEvent) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	s.opts.setStatus(s.Descriptor(), true)
	defer s.opts.setStatus(s.Descriptor(), false)
	s.opts.logger().Info("stream connected", "stream", s.cfg.EffectiveName(), "type", "http")

	if err := scanLines(ctx, resp.Body, out, s.Descriptor(), s.opts.MaxLineBytes); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// readTCP connects to a raw socket and emits each received line. The URL is
// "host:port", with an optional tcp:// prefix.
func (s *streamAdapter) readTCP(ctx context.Context, out chan<- event.LogEvent) error {
	addr := strings.TrimPrefix(s.cfg.URL, "tcp://")

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial tcp: %w", err)
	}
	defer conn.Close()
	s.opts.setStatus(s.Descriptor(), true)
	defer s.opts.setStatus(s.Descriptor(), false)
	s.opts.logger().Info("stream connected", "stream", s.cfg.EffectiveName(), "type", "tcp")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := scanLines(ctx, conn, out, s.Descriptor(), s.opts.MaxLineBytes); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}
