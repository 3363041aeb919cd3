package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/event"
)

// pagerdutyEventsURL is overridable in tests.
var pagerdutyEventsURL = "https://events.pagerduty.com/v2/enqueue"

// pagerdutySink triggers a PagerDuty incident through the Events API v2.
// The alert ID doubles as the dedup key.
type pagerdutySink struct {
	name   string
	cfg    config.SinkConfig
	client *http.Client
}

func (s *pagerdutySink) Name() string { return s.name }

func (s *pagerdutySink) Send(ctx context.Context, a event.AlertEvent) error {
	key := s.cfg.RoutingKey()
	if key == "" {
		return fmt.Errorf("sink %q: no pagerduty routing key configured", s.name)
	}

	body, _ := json.Marshal(map[string]interface{}{
		"routing_key":  key,
		"event_action": "trigger",
		"dedup_key":    a.ID,
		"payload": map[string]string{
			"summary":  fmt.Sprintf("%s: %s", a.Name, a.Message),
			"source":   a.Identity,
			"severity": "error",
		},
	})
	return post(ctx, s.client, pagerdutyEventsURL, "application/json", body)
}
