package source

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/pulseguard/pulseguard/internal/event"
)

// containerAdapter follows one Docker container's logs through the docker
// CLI. --tail 0 skips history so only lines written after attach are seen.
type containerAdapter struct {
	name string
	opts Options
}

// NewContainer returns an adapter following the named Docker container.
func NewContainer(name string, opts Options) Adapter {
	return &containerAdapter{name: name, opts: opts}
}

func (c *containerAdapter) Descriptor() Descriptor {
	return Descriptor{ID: c.name, Kind: event.KindContainer}
}

func (c *containerAdapter) Run(ctx context.Context, out chan<- event.LogEvent) error {
	return runLoop(ctx, c.opts.logger(), c.Descriptor(), c.opts.ReconnectDelay, func(ctx context.Context) error {
		return c.follow(ctx, out)
	})
}

// follow attaches to the container and streams both stdout and stderr until
// the process exits or the context is cancelled. Container log lines land on
// either pipe, so both are watched.
func (c *containerAdapter) follow(ctx context.Context, out chan<- event.LogEvent) error {
	cmd := exec.CommandContext(ctx, "docker", "logs", "-f", "--tail", "0", c.name)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start docker logs: %w", err)
	}
	c.opts.setStatus(c.Descriptor(), true)
	defer c.opts.setStatus(c.Descriptor(), false)
	c.opts.logger().Info("following container", "container", c.name)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanLines(ctx, stdout, out, c.Descriptor(), c.opts.MaxLineBytes)
	}()
	go func() {
		defer wg.Done()
		scanLines(ctx, stderr, out, c.Descriptor(), c.opts.MaxLineBytes)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("docker logs exited: %w", err)
	}
	return nil
}
