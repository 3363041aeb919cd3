// Package sink implements the alert delivery channels. Each configured sink
// is built once at startup; deliveries are independent, so one failing sink
// never blocks another.
package sink

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/event"
)

const sendTimeout = 10 * time.Second

// Sink delivers one alert to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, a event.AlertEvent) error
}

// Build constructs the named sink from its configuration. The config is
// validated at load time, so an unknown type here is a programming error.
func Build(name string, sc config.SinkConfig) (Sink, error) {
	client := &http.Client{Timeout: sendTimeout}
	switch sc.Type {
	case "stdout":
		return &stdoutSink{name: name}, nil
	case "webhook":
		return &webhookSink{name: name, cfg: sc, client: client}, nil
	case "slack":
		return &slackSink{name: name, cfg: sc, client: client}, nil
	case "discord":
		return &discordSink{name: name, cfg: sc, client: client}, nil
	case "telegram":
		return &telegramSink{name: name, cfg: sc, client: client}, nil
	case "ntfy":
		return &ntfySink{name: name, cfg: sc, client: client}, nil
	case "pagerduty":
		return &pagerdutySink{name: name, cfg: sc, client: client}, nil
	case "email":
		return &emailSink{name: name, cfg: sc}, nil
	case "sendgrid":
		return &sendgridSink{name: name, cfg: sc, client: client}, nil
	default:
		return nil, fmt.Errorf("sink %q: unknown type %q", name, sc.Type)
	}
}

// BuildAll constructs every configured sink, keyed by name.
func BuildAll(cfgs map[string]config.SinkConfig) (map[string]Sink, error) {
	sinks := make(map[string]Sink, len(cfgs))
	for name, sc := range cfgs {
		s, err := Build(name, sc)
		if err != nil {
			return nil, err
		}
		sinks[name] = s
	}
	return sinks, nil
}

// post sends a JSON body and treats any 4xx/5xx status as an error.
func post(ctx context.Context, client *http.Client, url, contentType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("returned HTTP %d", resp.StatusCode)
	}
	return nil
}
