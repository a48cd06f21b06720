package health

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sessionhold/pkg/session"
)

// Metrics holds all Prometheus metrics for sessionhold.
// It doubles as a session.Observer so holders report their lifecycle directly.
type Metrics struct {
	SessionsAllocated *prometheus.CounterVec
	AllocationErrors  *prometheus.CounterVec
	SessionsClosed    *prometheus.CounterVec
	SessionsOpen      *prometheus.GaugeVec
	ResponsesTotal    *prometheus.CounterVec
	ResponseBytes     *prometheus.CounterVec
	ProbesTotal       *prometheus.CounterVec
	ProbeDuration     *prometheus.HistogramVec
	QueuedProbes      prometheus.Gauge
	ActiveWorkers     prometheus.Gauge
	TargetHealth      *prometheus.GaugeVec
}

var _ session.Observer = (*Metrics)(nil)

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsAllocated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sessionhold",
				Name:      "sessions_allocated_total",
				Help:      "Sessions allocated by backend",
			},
			[]string{"backend"},
		),
		AllocationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sessionhold",
				Name:      "allocation_errors_total",
				Help:      "Failed session allocations by backend",
			},
			[]string{"backend"},
		),
		SessionsClosed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sessionhold",
				Name:      "sessions_closed_total",
				Help:      "Sessions closed by backend and result (ok, error, external)",
			},
			[]string{"backend", "result"},
		),
		SessionsOpen: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "sessionhold",
				Name:      "sessions_open",
				Help:      "Sessions currently allocated and not yet seen closed",
			},
			[]string{"backend"},
		),
		ResponsesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sessionhold",
				Name:      "responses_total",
				Help:      "Normalized responses by backend and status class",
			},
			[]string{"backend", "class"},
		),
		ResponseBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sessionhold",
				Name:      "response_bytes_total",
				Help:      "Buffered response body bytes by backend",
			},
			[]string{"backend"},
		),
		ProbesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sessionhold",
				Name:      "probes_total",
				Help:      "Probes by target and outcome",
			},
			[]string{"target", "outcome"},
		),
		ProbeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sessionhold",
				Name:      "probe_duration_seconds",
				Help:      "Probe latency histogram",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			},
			[]string{"target"},
		),
		QueuedProbes: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sessionhold",
				Name:      "queued_probes",
				Help:      "Probes waiting in the worker queue",
			},
		),
		ActiveWorkers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sessionhold",
				Name:      "active_workers",
				Help:      "Workers currently running a probe",
			},
		),
		TargetHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "sessionhold",
				Name:      "target_health",
				Help:      "Health status of each target (1=healthy, 0=unhealthy)",
			},
			[]string{"target"},
		),
	}
}

// SessionAllocated implements session.Observer.
func (m *Metrics) SessionAllocated(backend string) {
	m.SessionsAllocated.WithLabelValues(backend).Inc()
	m.SessionsOpen.WithLabelValues(backend).Inc()
}

// AllocationFailed implements session.Observer.
func (m *Metrics) AllocationFailed(backend string, _ error) {
	m.AllocationErrors.WithLabelValues(backend).Inc()
}

// SessionClosed implements session.Observer.
func (m *Metrics) SessionClosed(backend string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SessionsClosed.WithLabelValues(backend, result).Inc()
	m.SessionsOpen.WithLabelValues(backend).Dec()
}

// SessionLost implements session.Observer.
func (m *Metrics) SessionLost(backend string) {
	m.SessionsClosed.WithLabelValues(backend, "external").Inc()
	m.SessionsOpen.WithLabelValues(backend).Dec()
}

// ResponseParsed implements session.Observer.
func (m *Metrics) ResponseParsed(backend string, statusCode int, bodyBytes int) {
	m.ResponsesTotal.WithLabelValues(backend, StatusClass(statusCode)).Inc()
	m.ResponseBytes.WithLabelValues(backend).Add(float64(bodyBytes))
}

// RecordProbe records the outcome and latency of a probe.
func (m *Metrics) RecordProbe(target string, passed bool, durationSeconds float64) {
	outcome := "pass"
	if !passed {
		outcome = "fail"
	}
	m.ProbesTotal.WithLabelValues(target, outcome).Inc()
	m.ProbeDuration.WithLabelValues(target).Observe(durationSeconds)
	m.SetTargetHealth(target, passed)
}

// SetTargetHealth updates the health status for a target.
func (m *Metrics) SetTargetHealth(target string, healthy bool) {
	if healthy {
		m.TargetHealth.WithLabelValues(target).Set(1)
	} else {
		m.TargetHealth.WithLabelValues(target).Set(0)
	}
}

// SetQueuedProbes updates the queue depth gauge.
func (m *Metrics) SetQueuedProbes(count int) {
	m.QueuedProbes.Set(float64(count))
}

// IncActiveWorkers marks a worker busy.
func (m *Metrics) IncActiveWorkers() {
	m.ActiveWorkers.Inc()
}

// DecActiveWorkers marks a worker idle.
func (m *Metrics) DecActiveWorkers() {
	m.ActiveWorkers.Dec()
}

// StatusClass buckets a status code as "2xx", "4xx", ... or "none" for 0.
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "none"
	}
	return strconv.Itoa(code/100) + "xx"
}
