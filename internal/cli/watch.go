package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/dispatch"
	"github.com/pulseguard/pulseguard/internal/health"
	"github.com/pulseguard/pulseguard/internal/heartbeat"
	"github.com/pulseguard/pulseguard/internal/metrics"
	"github.com/pulseguard/pulseguard/internal/monitor"
	"github.com/pulseguard/pulseguard/internal/resource"
	"github.com/pulseguard/pulseguard/internal/rules"
	"github.com/pulseguard/pulseguard/internal/sink"
)

var (
	watchFiles      []string
	watchContainers []string
	watchNoRes      bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch sources and checks until interrupted",
	Long: `Watch starts every configured source adapter and health check, and runs
until SIGINT or SIGTERM. Edits to the config file restart the pipeline with
the new configuration; a broken edit is rejected and the old one keeps
running.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringArrayVarP(&watchFiles, "file", "f", nil, "additional log file to watch (repeatable)")
	watchCmd.Flags().StringArrayVar(&watchContainers, "container", nil, "additional container to watch (repeatable)")
	watchCmd.Flags().BoolVar(&watchNoRes, "no-resources", false, "disable host resource monitoring for this run")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := slog.Default()
	log.Info("pulseguard starting", "config", configPath)

	for {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg.MergeCLI(watchFiles, watchContainers)
		if watchNoRes {
			cfg.Resources = nil
		}

		reload := make(chan struct{}, 1)
		runCtx, cancelRun := context.WithCancel(ctx)

		go config.Watch(runCtx, configPath, func(*config.Config) {
			select {
			case reload <- struct{}{}:
			default:
			}
		})

		err = runPipeline(runCtx, cfg, log)
		cancelRun()
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			log.Info("pulseguard shutting down")
			return nil
		case <-reload:
			log.Info("configuration changed, restarting pipeline")
		}
	}
}

// runPipeline builds and runs every component for one config generation. It
// returns nil when the context is cancelled and an error only when the
// configuration cannot be turned into a running pipeline.
func runPipeline(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	identity := cfg.EffectiveIdentity()

	sinks, err := sink.BuildAll(cfg.Sinks)
	if err != nil {
		return err
	}
	set, err := rules.CompileSet(cfg.Rules)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.MetricsListen != "" {
		m = metrics.New()
	}

	d := dispatch.New(identity, sinks, cfg.QueueSize, log, m)
	mon := monitor.New(cfg, set, d, log, m)

	poller, err := health.New(cfg.Checks, d, log, m)
	if err != nil {
		return err
	}

	log.Info("pipeline ready",
		"identity", identity,
		"rules", len(cfg.Rules),
		"checks", len(cfg.Checks),
		"sinks", len(cfg.Sinks))

	var wg sync.WaitGroup
	run := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	run(func() { d.Run(ctx) })
	run(func() { poller.Run(ctx) })
	if cfg.Resources != nil {
		w := resource.New(*cfg.Resources, d, log)
		run(func() { w.Run(ctx) })
	}
	if cfg.Heartbeat != nil {
		b := heartbeat.New(*cfg.Heartbeat, identity, log)
		run(func() { b.Run(ctx) })
	}
	if m != nil {
		run(func() {
			if err := m.Serve(ctx, cfg.MetricsListen, log); err != nil {
				log.Error("metrics endpoint failed", "error", err)
			}
		})
	}

	err = mon.Run(ctx)
	wg.Wait()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}
