package sink

import (
	"context"
	"fmt"
	"os"

	"github.com/pulseguard/pulseguard/internal/event"
)

// stdoutSink prints alerts to standard output. Useful for piping into other
// tools and for trying out rules without configuring a real destination.
type stdoutSink struct {
	name string
}

func (s *stdoutSink) Name() string { return s.name }

func (s *stdoutSink) Send(_ context.Context, a event.AlertEvent) error {
	_, err := fmt.Fprintf(os.Stdout, "[%s] ALERT %s (%s): %s\n",
		a.FiredAt.Format("2006-01-02 15:04:05"), a.Name, a.Identity, a.Message)
	return err
}
