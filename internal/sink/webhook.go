package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/event"
)

// webhookSink posts the full alert as JSON to an arbitrary HTTP endpoint.
type webhookSink struct {
	name   string
	cfg    config.SinkConfig
	client *http.Client
}

func (s *webhookSink) Name() string { return s.name }

func (s *webhookSink) Send(ctx context.Context, a event.AlertEvent) error {
	url := s.cfg.ResolvedURL()
	if url == "" {
		return fmt.Errorf("sink %q: no webhook url configured", s.name)
	}
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return post(ctx, s.client, url, "application/json", body)
}

// slackSink posts to a Slack incoming webhook.
type slackSink struct {
	name   string
	cfg    config.SinkConfig
	client *http.Client
}

func (s *slackSink) Name() string { return s.name }

func (s *slackSink) Send(ctx context.Context, a event.AlertEvent) error {
	url := s.cfg.ResolvedURL()
	if url == "" {
		return fmt.Errorf("sink %q: no slack webhook url configured", s.name)
	}
	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s* on %s\n%s", a.Name, a.Identity, a.Message),
	})
	return post(ctx, s.client, url, "application/json", body)
}

// discordSink posts to a Discord webhook.
type discordSink struct {
	name   string
	cfg    config.SinkConfig
	client *http.Client
}

func (s *discordSink) Name() string { return s.name }

func (s *discordSink) Send(ctx context.Context, a event.AlertEvent) error {
	url := s.cfg.ResolvedURL()
	if url == "" {
		return fmt.Errorf("sink %q: no discord webhook url configured", s.name)
	}
	body, _ := json.Marshal(map[string]string{
		"content": fmt.Sprintf("**%s** on %s\n%s", a.Name, a.Identity, a.Message),
	})
	return post(ctx, s.client, url, "application/json", body)
}
