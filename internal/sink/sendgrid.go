package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/event"
)

// sendgridAPI is overridable in tests.
var sendgridAPI = "https://api.sendgrid.com"

// sendgridSink delivers alert emails through the SendGrid v3 mail API. The
// API key is read from the environment on every send so rotated keys take
// effect without a restart.
type sendgridSink struct {
	name   string
	cfg    config.SinkConfig
	client *http.Client
}

func (s *sendgridSink) Name() string { return s.name }

func (s *sendgridSink) Send(ctx context.Context, a event.AlertEvent) error {
	key := s.cfg.APIKey()
	if key == "" {
		return fmt.Errorf("sink %q: no sendgrid api key configured", s.name)
	}
	if s.cfg.From == "" || len(s.cfg.To) == 0 {
		return fmt.Errorf("sink %q: from and to are required", s.name)
	}

	personalizations := make([]map[string]interface{}, 0, len(s.cfg.To))
	for _, to := range s.cfg.To {
		personalizations = append(personalizations, map[string]interface{}{
			"to": []map[string]string{{"email": to}},
		})
	}
	body, _ := json.Marshal(map[string]interface{}{
		"personalizations": personalizations,
		"from":             map[string]string{"email": s.cfg.From},
		"subject":          fmt.Sprintf("[%s] %s", a.Identity, a.Name),
		"content": []map[string]string{{
			"type":  "text/plain",
			"value": a.Message,
		}},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendgridAPI+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

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
