package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/sessionhold/internal/config"
	"github.com/sessionhold/internal/health"
	"github.com/sessionhold/internal/probe"
	"github.com/sessionhold/pkg/session"
	"golang.org/x/time/rate"
)

// Job asks a worker to probe one target.
type Job struct {
	Target int // index into the pool's targets
}

// Pool manages a pool of worker goroutines. Each worker owns one prober per
// target, so a session holder is never shared between goroutines.
type Pool struct {
	cfg      *config.Config
	metrics  *health.Metrics
	stats    *Stats
	limiter  *rate.Limiter
	jobs     chan Job
	wg       sync.WaitGroup
	active   atomic.Int64
	dropped  atomic.Int64
	cancel   context.CancelFunc
	mu       sync.RWMutex
	stopped  bool
	logger   zerolog.Logger
	newProbe func(t config.Target, cfg session.Config, opts ...session.Option) (probe.Prober, error)
}

// NewPool creates a new worker pool for cfg.Targets.
// A nil metrics or stats gets a private instance that nothing exports.
func NewPool(cfg *config.Config, metrics *health.Metrics, stats *Stats, logger zerolog.Logger) (*Pool, error) {
	if metrics == nil {
		metrics = health.NewMetrics(prometheus.NewRegistry())
	}
	if stats == nil {
		stats = NewStats()
	}
	for _, t := range cfg.Targets {
		if _, err := probe.CompileCheck(t.Expect); err != nil {
			return nil, fmt.Errorf("target %s: %w", t.Name, err)
		}
	}

	burst := int(cfg.Run.Rate / 10)
	if burst < 1 {
		burst = 1
	}

	return &Pool{
		cfg:      cfg,
		metrics:  metrics,
		stats:    stats,
		limiter:  rate.NewLimiter(rate.Limit(cfg.Run.Rate), burst),
		jobs:     make(chan Job, cfg.Run.QueueSize),
		logger:   logger,
		newProbe: probe.New,
	}, nil
}

// Start launches the worker goroutines. ctx bounds in-flight probes; cancel
// it only to abandon them, use Stop for a graceful shutdown.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.cfg.Run.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.logger.Info().
		Int("workers", p.cfg.Run.Workers).
		Int("queue_size", p.cfg.Run.QueueSize).
		Float64("rate", p.cfg.Run.Rate).
		Msg("started workers")
}

// worker is the main worker goroutine.
func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	logger := p.logger.With().Int("worker", id).Logger()
	probers := make([]probe.Prober, len(p.cfg.Targets))
	uses := make([]int, len(p.cfg.Targets))

	defer func() {
		closeCtx := context.WithoutCancel(ctx)
		for _, pr := range probers {
			if pr == nil {
				continue
			}
			if err := pr.Close(closeCtx); err != nil {
				logger.Warn().Err(err).Str("target", pr.Target().Name).Msg("failed to close session")
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.metrics.SetQueuedProbes(len(p.jobs))

			if probers[job.Target] == nil {
				pr, err := p.prober(job.Target, logger)
				if err != nil {
					logger.Error().Err(err).Msg("failed to build prober")
					continue
				}
				probers[job.Target] = pr
			}

			uses[job.Target]++
			p.processJob(ctx, probers[job.Target], uses[job.Target], logger)
		}
	}
}

func (p *Pool) prober(i int, logger zerolog.Logger) (probe.Prober, error) {
	t := p.cfg.Targets[i]
	return p.newProbe(t, p.cfg.SessionConfig(t),
		session.WithObserver(session.Observers(p.metrics, targetObserver{stats: p.stats, target: t.Name})),
		session.WithLogger(logger.With().Str("target", t.Name).Logger()),
	)
}

// processJob executes a single probe.
func (p *Pool) processJob(ctx context.Context, pr probe.Prober, uses int, logger zerolog.Logger) {
	if err := p.limiter.Wait(ctx); err != nil {
		return // Context cancelled
	}

	p.active.Add(1)
	p.metrics.IncActiveWorkers()
	defer func() {
		p.active.Add(-1)
		p.metrics.DecActiveWorkers()
	}()

	res := pr.Probe(ctx)

	p.metrics.RecordProbe(res.Target, res.Passed, res.Duration.Seconds())
	p.stats.Record(res)

	if !res.Passed {
		logger.Debug().
			Err(res.Err).
			Str("target", res.Target).
			Int("status", res.StatusCode()).
			Dur("duration", res.Duration).
			Msg("probe failed")
	}

	if n := p.cfg.Run.RecycleEvery; n > 0 && uses%n == 0 {
		if err := pr.Recycle(ctx); err != nil {
			logger.Warn().Err(err).Str("target", res.Target).Msg("failed to recycle session")
		}
	}
}

// Submit adds a job to the queue. It reports false when the queue is full
// or the pool is stopped.
func (p *Pool) Submit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return false
	}

	select {
	case p.jobs <- job:
		p.metrics.SetQueuedProbes(len(p.jobs))
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Run submits one job per target every cfg.Run.Interval until ctx is done
// or cfg.Run.Duration has elapsed. The first round is submitted immediately.
func (p *Pool) Run(ctx context.Context) {
	if d := p.cfg.Run.Duration; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	ticker := time.NewTicker(p.cfg.Run.Interval)
	defer ticker.Stop()

	for {
		for i := range p.cfg.Targets {
			if !p.Submit(Job{Target: i}) {
				p.logger.Warn().Str("target", p.cfg.Targets[i].Name).Msg("queue full, probe dropped")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Active returns the number of probes in flight.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Dropped returns the number of jobs rejected because the queue was full.
func (p *Pool) Dropped() int64 {
	return p.dropped.Load()
}

// QueueSize returns the current queue length.
func (p *Pool) QueueSize() int {
	return len(p.jobs)
}

// Stats returns the pool's aggregated results.
func (p *Pool) Stats() *Stats {
	return p.stats
}

// Stop closes the queue and lets the workers finish what is queued. If that
// takes longer than cfg.Run.DrainTimeout the remaining probes are cancelled.
// Workers close their sessions before returning.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.cfg.Run.DrainTimeout):
		p.logger.Warn().
			Int("queued", len(p.jobs)).
			Int64("in_flight", p.active.Load()).
			Msg("drain timeout, cancelling remaining probes")
		if p.cancel != nil {
			p.cancel()
		}
		<-done
	}

	if p.cancel != nil {
		p.cancel()
	}
	p.logger.Info().Msg("all workers stopped")
}
