package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sessionhold/internal/health"
	"github.com/sessionhold/internal/logging"
	"github.com/sessionhold/internal/tui"
	"github.com/sessionhold/internal/worker"
	"github.com/spf13/cobra"
)

var (
	runDuration time.Duration
	runRate     float64
	runWorkers  int
	runMetrics  bool
	runStrict   bool
)

var runCmd = &cobra.Command{
	Use:   "run [target...]",
	Short: "Probe targets continuously from a worker pool",
	Long: `Probe targets every run.interval from a pool of workers until
run.duration elapses or the process is interrupted. Each worker keeps one
session per target open between probes and replaces it once it closes, or
every run.recycle_every probes.

Example:
  sessionhold run --config sessionhold.yaml
  sessionhold run --duration 5m --rate 50 --metrics`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().DurationVar(&runDuration, "duration", 0, "Override run.duration (0 keeps the configured value)")
	runCmd.Flags().Float64Var(&runRate, "rate", 0, "Override run.rate in probes per second")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Override run.workers")
	runCmd.Flags().BoolVar(&runMetrics, "metrics", false, "Serve Prometheus metrics even if metrics.enabled is false")
	runCmd.Flags().BoolVar(&runStrict, "strict", false, "Exit non-zero if any probe failed")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := selectTargets(cfg, args); err != nil {
		return err
	}

	if runDuration > 0 {
		cfg.Run.Duration = runDuration
	}
	if runRate > 0 {
		cfg.Run.Rate = runRate
	}
	if runWorkers > 0 {
		cfg.Run.Workers = runWorkers
	}
	if runMetrics {
		cfg.Metrics.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := health.NewMetrics(reg)

	if cfg.Metrics.Enabled {
		server := health.NewServer(cfg.Metrics, reg)
		ln, err := server.Listen()
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		go func() {
			if err := server.Start(ln); err != nil {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Stop(ctx)
		}()
	}

	names := make([]string, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		names = append(names, t.Name)
	}

	pool, err := worker.NewPool(cfg, metrics, worker.NewStats(names...), logging.Component("worker"))
	if err != nil {
		return err
	}

	// Workers get their own context so Stop can drain them after a signal.
	pool.Start(context.Background())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Int("targets", len(cfg.Targets)).
		Dur("interval", cfg.Run.Interval).
		Dur("duration", cfg.Run.Duration).
		Msg("probing")

	start := time.Now()
	pool.Run(ctx)
	if ctx.Err() != nil {
		logger.Info().Msg("interrupted, draining workers")
	}
	pool.Stop()

	summaries := pool.Stats().Snapshot()
	fmt.Fprintln(cmd.OutOrStdout(), tui.RenderSummary(summaries, time.Since(start)))
	if dropped := pool.Dropped(); dropped > 0 {
		logger.Warn().Int64("dropped", dropped).Msg("probes dropped because the queue was full")
	}

	if runStrict {
		for _, s := range summaries {
			if s.Failures > 0 {
				return fmt.Errorf("target %s failed %d of %d probes", s.Target, s.Failures, s.Probes)
			}
		}
	}
	return nil
}
