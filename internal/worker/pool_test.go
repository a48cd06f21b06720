package worker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/sessionhold/internal/config"
	"github.com/sessionhold/internal/health"
	"github.com/sessionhold/internal/probe"
	"github.com/sessionhold/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(urls ...string) *config.Config {
	cfg := config.DefaultConfig()
	for i, u := range urls {
		cfg.Targets = append(cfg.Targets, config.Target{
			Name:    []string{"ok", "broken"}[i],
			URL:     u,
			Backend: config.BackendHTTP,
			Method:  http.MethodGet,
		})
	}
	cfg.Run.Workers = 2
	cfg.Run.QueueSize = 64
	cfg.Run.Rate = 1000
	cfg.Run.Interval = 10 * time.Millisecond
	cfg.Run.Duration = 60 * time.Millisecond
	cfg.Run.DrainTimeout = time.Second
	return cfg
}

func TestPoolRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusInternalServerError)
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL+"/ok", srv.URL+"/broken")
	cfg.Run.RecycleEvery = 1

	metrics := health.NewMetrics(prometheus.NewRegistry())
	stats := NewStats("ok", "broken")
	pool, err := NewPool(cfg, metrics, stats, zerolog.Nop())
	require.NoError(t, err)

	pool.Start(context.Background())
	pool.Run(context.Background())
	pool.Stop()

	summaries := pool.Stats().Snapshot()
	require.Len(t, summaries, 2)

	ok, broken := summaries[0], summaries[1]
	assert.Equal(t, "ok", ok.Target)
	assert.Positive(t, ok.Probes)
	assert.Zero(t, ok.Failures)
	assert.Equal(t, 200, ok.LastStatus)
	// Every probe recycles its session, so each one allocates.
	assert.Equal(t, ok.Probes, ok.Allocations)

	assert.Equal(t, "broken", broken.Target)
	assert.Positive(t, broken.Probes)
	assert.Equal(t, broken.Probes, broken.Failures)
	assert.Zero(t, broken.Errors)
	assert.Equal(t, 500, broken.LastStatus)
	assert.InDelta(t, 1.0, broken.FailureRate(), 0.0001)

	assert.Zero(t, testutil.ToFloat64(metrics.SessionsOpen.WithLabelValues("http")))
	assert.Equal(t, float64(ok.Probes), testutil.ToFloat64(metrics.ProbesTotal.WithLabelValues("ok", "pass")))
	assert.Equal(t, float64(broken.Probes), testutil.ToFloat64(metrics.ProbesTotal.WithLabelValues("broken", "fail")))
	assert.Zero(t, testutil.ToFloat64(metrics.TargetHealth.WithLabelValues("broken")))
	assert.Zero(t, pool.Active())
}

func TestPoolReusesSessionsWithoutRecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Run.Workers = 1

	metrics := health.NewMetrics(prometheus.NewRegistry())
	pool, err := NewPool(cfg, metrics, NewStats(), zerolog.Nop())
	require.NoError(t, err)

	pool.Start(context.Background())
	pool.Run(context.Background())
	pool.Stop()

	s := pool.Stats().Snapshot()
	require.Len(t, s, 1)
	assert.Greater(t, s[0].Probes, int64(1))
	assert.EqualValues(t, 1, s[0].Allocations)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionsClosed.WithLabelValues("http", "ok")))
}

func TestPoolWithoutMetricsOrStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	pool, err := NewPool(testConfig(srv.URL), nil, nil, zerolog.Nop())
	require.NoError(t, err)

	pool.Start(context.Background())
	pool.Run(context.Background())
	pool.Stop()

	s := pool.Stats().Snapshot()
	require.Len(t, s, 1)
	assert.Positive(t, s[0].Probes)
	assert.Zero(t, s[0].Failures)
}

func TestPoolSubmit(t *testing.T) {
	cfg := testConfig("http://localhost")
	cfg.Run.QueueSize = 1

	pool, err := NewPool(cfg, health.NewMetrics(prometheus.NewRegistry()), NewStats(), zerolog.Nop())
	require.NoError(t, err)

	assert.True(t, pool.Submit(Job{Target: 0}))
	assert.False(t, pool.Submit(Job{Target: 0}))
	assert.EqualValues(t, 1, pool.Dropped())
	assert.Equal(t, 1, pool.QueueSize())

	pool.Stop()
	assert.False(t, pool.Submit(Job{Target: 0}))
	pool.Stop()
}

func TestPoolRejectsBadExpect(t *testing.T) {
	cfg := testConfig("http://localhost")
	cfg.Targets[0].Expect = "status =="

	_, err := NewPool(cfg, health.NewMetrics(prometheus.NewRegistry()), NewStats(), zerolog.Nop())
	assert.Error(t, err)
}

func TestPoolSkipsTargetWhenProberFails(t *testing.T) {
	cfg := testConfig("http://localhost")
	cfg.Run.Duration = 20 * time.Millisecond
	cfg.Run.Workers = 1

	pool, err := NewPool(cfg, health.NewMetrics(prometheus.NewRegistry()), NewStats("ok"), zerolog.Nop())
	require.NoError(t, err)

	var calls int
	pool.newProbe = func(config.Target, session.Config, ...session.Option) (probe.Prober, error) {
		calls++
		return nil, errors.New("no prober")
	}

	pool.Start(context.Background())
	pool.Run(context.Background())
	pool.Stop()

	assert.Positive(t, calls)
	assert.Zero(t, pool.Stats().Snapshot()[0].Probes)
}

func TestStatsSnapshot(t *testing.T) {
	stats := NewStats("a")
	for i := 1; i <= 100; i++ {
		stats.Record(probe.Result{Target: "a", Duration: time.Duration(i) * time.Millisecond, Passed: i <= 90})
	}
	stats.Record(probe.Result{Target: "b", Err: errors.New("dial tcp: refused")})
	stats.Allocated("a")

	snap := stats.Snapshot()
	require.Len(t, snap, 2)

	a := snap[0]
	assert.EqualValues(t, 100, a.Probes)
	assert.EqualValues(t, 10, a.Failures)
	assert.EqualValues(t, 1, a.Allocations)
	assert.InDelta(t, 50*time.Millisecond, a.P50, float64(time.Millisecond))
	assert.InDelta(t, 99*time.Millisecond, a.P99, float64(time.Millisecond))
	assert.InDelta(t, 100*time.Millisecond, a.Max, float64(time.Millisecond))
	assert.InDelta(t, 50500*time.Microsecond, a.Mean, float64(time.Millisecond))

	b := snap[1]
	assert.Equal(t, "b", b.Target)
	assert.EqualValues(t, 1, b.Errors)
	assert.EqualValues(t, 1, b.Failures)
	assert.Equal(t, "dial tcp: refused", b.LastError)
	assert.Zero(t, b.LastStatus)
}
