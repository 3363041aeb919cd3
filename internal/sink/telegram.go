package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/event"
)

// telegramAPI is overridable in tests.
var telegramAPI = "https://api.telegram.org"

// telegramSink sends alerts through the Telegram Bot API. The bot token is
// read from the environment on every send so rotated tokens take effect
// without a restart.
type telegramSink struct {
	name   string
	cfg    config.SinkConfig
	client *http.Client
}

func (s *telegramSink) Name() string { return s.name }

func (s *telegramSink) Send(ctx context.Context, a event.AlertEvent) error {
	token := s.cfg.BotToken()
	if token == "" {
		return fmt.Errorf("sink %q: no telegram bot token configured", s.name)
	}
	if s.cfg.ChatID == "" {
		return fmt.Errorf("sink %q: no telegram chat_id configured", s.name)
	}

	body, _ := json.Marshal(map[string]string{
		"chat_id": s.cfg.ChatID,
		"text":    fmt.Sprintf("%s on %s\n%s", a.Name, a.Identity, a.Message),
	})
	url := fmt.Sprintf("%s/bot%s/sendMessage", telegramAPI, token)
	return post(ctx, s.client, url, "application/json", body)
}
