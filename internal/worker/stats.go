package worker

import (
	"sync"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
	"github.com/sessionhold/internal/probe"
)

// Latencies are recorded in microseconds between 1µs and one minute.
const (
	minLatency = 1
	maxLatency = int64(time.Minute / time.Microsecond)
	sigFigs    = 3
)

// Summary is a point-in-time view of one target's probes.
type Summary struct {
	Target      string
	Probes      int64
	Failures    int64 // probes that did not pass, errors included
	Errors      int64 // probes that produced no response
	Allocations int64 // sessions opened for the target
	P50         time.Duration
	P95         time.Duration
	P99         time.Duration
	Max         time.Duration
	Mean        time.Duration
	LastStatus  int
	LastError   string
}

// FailureRate returns Failures/Probes, or 0 before the first probe.
func (s Summary) FailureRate() float64 {
	if s.Probes == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Probes)
}

type targetStats struct {
	hist        *hdrhistogram.Histogram
	failures    int64
	errors      int64
	allocations int64
	lastStatus  int
	lastError   string
}

// Stats aggregates probe results per target. It is safe for concurrent use.
type Stats struct {
	mu      sync.Mutex
	order   []string
	targets map[string]*targetStats
}

// NewStats creates stats for the named targets, kept in the given order.
func NewStats(names ...string) *Stats {
	s := &Stats{targets: make(map[string]*targetStats, len(names))}
	for _, name := range names {
		s.get(name)
	}
	return s
}

// get must be called with mu held or before s is shared.
func (s *Stats) get(name string) *targetStats {
	ts, ok := s.targets[name]
	if !ok {
		ts = &targetStats{hist: hdrhistogram.New(minLatency, maxLatency, sigFigs)}
		s.targets[name] = ts
		s.order = append(s.order, name)
	}
	return ts
}

// Record adds a probe result.
func (s *Stats) Record(res probe.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.get(res.Target)
	us := res.Duration.Microseconds()
	if us < minLatency {
		us = minLatency
	}
	if us > maxLatency {
		us = maxLatency
	}
	// Values are clamped into range, so RecordValue cannot fail.
	_ = ts.hist.RecordValue(us)

	if !res.Passed {
		ts.failures++
	}
	ts.lastStatus = res.StatusCode()
	ts.lastError = ""
	if res.Err != nil {
		ts.lastError = res.Err.Error()
		if res.Response == nil {
			ts.errors++
		}
	}
}

// Allocated counts a session allocation for target.
func (s *Stats) Allocated(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(target).allocations++
}

// Snapshot returns one summary per target.
func (s *Stats) Snapshot() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Summary, 0, len(s.order))
	for _, name := range s.order {
		ts := s.targets[name]
		out = append(out, Summary{
			Target:      name,
			Probes:      ts.hist.TotalCount(),
			Failures:    ts.failures,
			Errors:      ts.errors,
			Allocations: ts.allocations,
			P50:         micros(ts.hist.ValueAtQuantile(50)),
			P95:         micros(ts.hist.ValueAtQuantile(95)),
			P99:         micros(ts.hist.ValueAtQuantile(99)),
			Max:         micros(ts.hist.Max()),
			Mean:        time.Duration(ts.hist.Mean() * float64(time.Microsecond)),
			LastStatus:  ts.lastStatus,
			LastError:   ts.lastError,
		})
	}
	return out
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}

// targetObserver attributes session allocations to one target.
type targetObserver struct {
	stats  *Stats
	target string
}

func (o targetObserver) SessionAllocated(string)         { o.stats.Allocated(o.target) }
func (o targetObserver) AllocationFailed(string, error)  {}
func (o targetObserver) SessionClosed(string, error)     {}
func (o targetObserver) SessionLost(string)              {}
func (o targetObserver) ResponseParsed(string, int, int) {}
