package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sessionhold/internal/config"
	"github.com/sessionhold/internal/probe"
	"github.com/sessionhold/pkg/session"
)

// Status is the latest known health of a target.
type Status struct {
	Target   string
	Backend  config.Backend
	Checked  bool // false until the first check completes
	Healthy  bool
	Since    time.Time // when Healthy last changed
	Checks   int
	Failures int
	Last     probe.Result
}

// Checker performs periodic health checks on targets. Each target keeps its
// own long-lived session, reused between checks.
type Checker struct {
	interval time.Duration
	probers  []probe.Prober
	metrics  *Metrics
	logger   zerolog.Logger
	statuses map[string]*Status
	mu       sync.RWMutex
	running  sync.Mutex // serializes CheckAll
}

// NewChecker creates a checker for cfg.Targets, probing every cfg.Run.Interval.
// metrics may be nil.
func NewChecker(cfg *config.Config, metrics *Metrics, logger zerolog.Logger) (*Checker, error) {
	c := &Checker{
		interval: cfg.Run.Interval,
		metrics:  metrics,
		logger:   logger,
		statuses: make(map[string]*Status, len(cfg.Targets)),
	}

	var opts []session.Option
	if metrics != nil {
		opts = append(opts, session.WithObserver(metrics))
	}

	for _, t := range cfg.Targets {
		p, err := probe.New(t, cfg.SessionConfig(t),
			append(opts, session.WithLogger(logger.With().Str("target", t.Name).Logger()))...)
		if err != nil {
			c.Close(context.Background())
			return nil, fmt.Errorf("target %s: %w", t.Name, err)
		}
		c.probers = append(c.probers, p)
		c.statuses[t.Name] = &Status{Target: t.Name, Backend: t.Backend}
	}

	return c, nil
}

// Run checks all targets immediately and then every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		c.CheckAll(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// CheckAll probes every target concurrently and returns the updated statuses.
// Calls are serialized, so each prober is only ever used by one goroutine.
func (c *Checker) CheckAll(ctx context.Context) []Status {
	c.running.Lock()
	defer c.running.Unlock()

	var wg sync.WaitGroup
	for _, p := range c.probers {
		wg.Add(1)
		go func(p probe.Prober) {
			defer wg.Done()
			c.record(p.Probe(ctx))
		}(p)
	}
	wg.Wait()

	return c.Statuses()
}

// record updates the status of a target.
func (c *Checker) record(res probe.Result) {
	now := time.Now()

	c.mu.Lock()
	st := c.statuses[res.Target]
	changed := !st.Checked || st.Healthy != res.Passed
	if changed {
		st.Since = now
	}
	st.Checked = true
	st.Healthy = res.Passed
	st.Checks++
	if !res.Passed {
		st.Failures++
	}
	st.Last = res
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordProbe(res.Target, res.Passed, res.Duration.Seconds())
	}

	// Log status changes
	if !changed {
		return
	}
	if res.Passed {
		c.logger.Info().Str("target", res.Target).Int("status", res.StatusCode()).Msg("target is healthy")
	} else {
		c.logger.Warn().Str("target", res.Target).Int("status", res.StatusCode()).Err(res.Err).Msg("target is unhealthy")
	}
}

// Statuses returns the status of every target in configuration order.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Status, 0, len(c.probers))
	for _, p := range c.probers {
		out = append(out, *c.statuses[p.Target().Name])
	}
	return out
}

// IsHealthy returns whether a target passed its last check.
func (c *Checker) IsHealthy(target string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st, ok := c.statuses[target]
	return ok && st.Healthy
}

// Recycle closes every target's session; the next check opens fresh ones.
func (c *Checker) Recycle(ctx context.Context) error {
	c.running.Lock()
	defer c.running.Unlock()

	var errs []error
	for _, p := range c.probers {
		errs = append(errs, p.Recycle(ctx))
	}
	return errors.Join(errs...)
}

// Close releases every session. The checker may still be used afterwards;
// sessions are reopened on the next check.
func (c *Checker) Close(ctx context.Context) error {
	return c.Recycle(ctx)
}
