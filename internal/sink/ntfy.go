package sink

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/event"
)

const defaultNtfyServer = "https://ntfy.sh"

// ntfySink publishes to an ntfy topic. The message goes in the body as plain
// text, the alert name in the Title header.
type ntfySink struct {
	name   string
	cfg    config.SinkConfig
	client *http.Client
}

func (s *ntfySink) Name() string { return s.name }

func (s *ntfySink) Send(ctx context.Context, a event.AlertEvent) error {
	if s.cfg.Topic == "" {
		return fmt.Errorf("sink %q: no ntfy topic configured", s.name)
	}
	server := s.cfg.Server
	if server == "" {
		server = defaultNtfyServer
	}
	url := strings.TrimRight(server, "/") + "/" + s.cfg.Topic

	body := fmt.Sprintf("%s: %s", a.Identity, a.Message)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(body)))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Title", a.Name)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("returned HTTP %d", resp.StatusCode)
	}
	return nil
}
