// Package heartbeat periodically tells an external receiver this process is
// alive. Dead-man's-switch services page when the pings stop, which covers
// the failure mode a local monitor cannot report on: its own host dying.
package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pulseguard/pulseguard/internal/config"
)

const sendTimeout = 10 * time.Second

// Beater posts one heartbeat per interval.
type Beater struct {
	cfg      config.HeartbeatConfig
	identity string
	log      *slog.Logger
	client   *http.Client
}

// New builds a Beater for the configured receiver.
func New(cfg config.HeartbeatConfig, identity string, log *slog.Logger) *Beater {
	return &Beater{
		cfg:      cfg,
		identity: identity,
		log:      log,
		client:   &http.Client{Timeout: sendTimeout},
	}
}

// Run sends heartbeats until the context is cancelled. The first beat goes
// out immediately so the receiver learns about the process at startup.
func (b *Beater) Run(ctx context.Context) {
	b.log.Info("starting heartbeat", "url", b.cfg.URL, "interval", b.cfg.Interval)
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	b.beat(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.beat(ctx)
		}
	}
}

func (b *Beater) beat(ctx context.Context) {
	if err := b.send(ctx); err != nil {
		if ctx.Err() == nil {
			b.log.Warn("heartbeat failed", "url", b.cfg.URL, "error", err)
		}
		return
	}
	b.log.Debug("heartbeat sent", "url", b.cfg.URL)
}

func (b *Beater) send(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{
		"identity":  b.identity,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("returned HTTP %d", resp.StatusCode)
	}
	return nil
}
