package sink

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/event"
)

// sendMail is overridable in tests.
var sendMail = smtp.SendMail

// emailSink delivers alerts over SMTP. Auth is used only when a username is
// configured, so unauthenticated relays on trusted networks work too.
type emailSink struct {
	name string
	cfg  config.SinkConfig
}

func (s *emailSink) Name() string { return s.name }

func (s *emailSink) Send(_ context.Context, a event.AlertEvent) error {
	if s.cfg.SMTPAddr == "" || s.cfg.From == "" || len(s.cfg.To) == 0 {
		return fmt.Errorf("sink %q: smtp_addr, from and to are required", s.name)
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		host, _, err := net.SplitHostPort(s.cfg.SMTPAddr)
		if err != nil {
			return fmt.Errorf("sink %q: smtp_addr must be host:port: %w", s.name, err)
		}
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password(), host)
	}

	msg := strings.Join([]string{
		"From: " + s.cfg.From,
		"To: " + strings.Join(s.cfg.To, ", "),
		fmt.Sprintf("Subject: [%s] %s", a.Identity, a.Name),
		"",
		a.Message,
		"",
	}, "\r\n")

	if err := sendMail(s.cfg.SMTPAddr, auth, s.cfg.From, s.cfg.To, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
