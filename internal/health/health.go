// Package health runs the periodic endpoint checks. Every check has its
// own goroutine and a three-state lifecycle: Unknown until enough evidence
// accumulates, then Up or Down. Exactly one alert marks each transition to
// Down and one marks the recovery.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/dispatch"
	"github.com/pulseguard/pulseguard/internal/limiter"
	"github.com/pulseguard/pulseguard/internal/metrics"
)

// Status is the lifecycle state of one check.
type Status int

const (
	StatusUnknown Status = iota
	StatusUp
	StatusDown
)

func (s Status) String() string {
	switch s {
	case StatusUp:
		return "up"
	case StatusDown:
		return "down"
	default:
		return "unknown"
	}
}

// checker holds one check's configuration and mutable state. The state is
// only touched from the check's own goroutine; the mutex protects reads from
// Statuses.
type checker struct {
	cfg    config.Check
	probe  probe
	client *http.Client

	mu     sync.Mutex
	status Status

	consec limiter.Counter
	window limiter.State
	th     *limiter.Threshold
}

// Poller owns every configured check.
type Poller struct {
	checks     []*checker
	dispatcher *dispatch.Dispatcher
	log        *slog.Logger
	metrics    *metrics.Metrics
}

// New builds a Poller from the configured checks.
func New(cfgs []config.Check, d *dispatch.Dispatcher, log *slog.Logger, m *metrics.Metrics) (*Poller, error) {
	p := &Poller{dispatcher: d, log: log, metrics: m}
	for _, ck := range cfgs {
		client := &http.Client{Timeout: ck.Timeout}
		pr, err := buildProbe(ck, client)
		if err != nil {
			return nil, err
		}
		c := &checker{cfg: ck, probe: pr, client: client}
		if ck.Threshold != nil {
			c.th = &limiter.Threshold{Count: ck.Threshold.Count, Window: ck.Threshold.Window}
		}
		p.checks = append(p.checks, c)
	}
	return p, nil
}

// Run probes every check on its interval until the context is cancelled.
// The first probe happens immediately so a dead endpoint is noticed at
// startup, not one interval later.
func (p *Poller) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, c := range p.checks {
		wg.Add(1)
		go func(c *checker) {
			defer wg.Done()
			p.runCheck(ctx, c)
		}(c)
	}
	wg.Wait()
}

func (p *Poller) runCheck(ctx context.Context, c *checker) {
	p.log.Info("starting health check",
		"check", c.cfg.Name, "type", c.cfg.Type, "url", c.cfg.URL, "interval", c.cfg.Interval)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	p.probeOnce(ctx, c)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probeOnce(ctx, c)
		}
	}
}

func (p *Poller) probeOnce(ctx context.Context, c *checker) {
	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	err := c.probe(probeCtx)
	cancel()
	if ctx.Err() != nil {
		return
	}
	p.observe(c, time.Now(), err)
}

// observe applies one probe result to the check's state machine. Two
// independent failure policies can mark the check down: the consecutive
// missed count, and the optional "N failures in window" threshold. A success
// resets the consecutive count and recovers a Down check with one alert.
func (p *Poller) observe(c *checker, now time.Time, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		prev := c.status
		c.status = StatusUp
		c.consec.Reset()
		if p.metrics != nil {
			p.metrics.CheckUp.WithLabelValues(c.cfg.Name).Set(1)
		}
		if prev == StatusDown {
			p.log.Info("check recovered", "check", c.cfg.Name)
			p.dispatcher.Dispatch(c.cfg.Name,
				fmt.Sprintf("%s recovered (%s)", c.cfg.Name, c.cfg.URL), c.cfg.Sinks)
		}
		return
	}

	n := c.consec.Fail()
	windowTripped := c.th != nil && c.window.Observe(now, c.th, 0)
	p.log.Warn("check probe failed",
		"check", c.cfg.Name, "consecutive", n, "error", err)

	if n < c.cfg.MissedThreshold && !windowTripped {
		return
	}
	if c.status == StatusDown {
		return
	}

	c.status = StatusDown
	if p.metrics != nil {
		p.metrics.CheckUp.WithLabelValues(c.cfg.Name).Set(0)
	}
	p.log.Error("check is down", "check", c.cfg.Name, "error", err)
	p.dispatcher.Dispatch(c.cfg.Name,
		fmt.Sprintf("%s is DOWN (%s): %v", c.cfg.Name, c.cfg.URL, err), c.cfg.Sinks)
}

// Result is one single-shot probe outcome, as produced by ProbeAll.
type Result struct {
	Name string
	URL  string
	Err  error
}

// ProbeAll probes every check exactly once, in configuration order. It
// touches no state machine and sends no alerts.
func ProbeAll(ctx context.Context, cfgs []config.Check) ([]Result, error) {
	results := make([]Result, 0, len(cfgs))
	for _, ck := range cfgs {
		client := &http.Client{Timeout: ck.Timeout}
		pr, err := buildProbe(ck, client)
		if err != nil {
			return nil, err
		}
		probeCtx, cancel := context.WithTimeout(ctx, ck.Timeout)
		results = append(results, Result{Name: ck.Name, URL: ck.URL, Err: pr(probeCtx)})
		cancel()
	}
	return results, nil
}

// Statuses reports the current state of every check, keyed by name.
func (p *Poller) Statuses() map[string]Status {
	out := make(map[string]Status, len(p.checks))
	for _, c := range p.checks {
		c.mu.Lock()
		out[c.cfg.Name] = c.status
		c.mu.Unlock()
	}
	return out
}
