package config

import (
	"time"

	"github.com/sessionhold/pkg/session"
)

// Config is the root configuration structure.
type Config struct {
	Sessions map[Backend]session.Config `yaml:"sessions"` // shared holder config per backend
	Targets  []Target                   `yaml:"targets"`
	Run      Run                        `yaml:"run"`
	Metrics  Metrics                    `yaml:"metrics"`
	Log      Log                        `yaml:"log"`
}

// Target defines a single endpoint to probe.
type Target struct {
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Backend Backend           `yaml:"backend"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Body    string            `yaml:"body,omitempty"`
	Timeout time.Duration     `yaml:"timeout"`
	Expect  string            `yaml:"expect,omitempty"`  // JavaScript expression, see probe.Check
	Service string            `yaml:"service,omitempty"` // gRPC health service name
	Session session.Config    `yaml:"session,omitempty"` // overrides the backend's shared block
}

// SessionConfig returns the holder configuration for t: the shared block of
// its backend overlaid with the target's own overrides.
func (c *Config) SessionConfig(t Target) session.Config {
	return c.Sessions[t.Backend].Merge(t.Session)
}

// Backend selects the session holder implementation.
type Backend string

const (
	BackendHTTP Backend = "http"
	BackendGRPC Backend = "grpc"
)

// Run configures the worker pool used by `run` and the refresh rate of `watch`.
type Run struct {
	Workers      int           `yaml:"workers"`
	QueueSize    int           `yaml:"queue_size"`
	Rate         float64       `yaml:"rate"`          // probes per second across all workers
	Interval     time.Duration `yaml:"interval"`      // time between probe rounds
	Duration     time.Duration `yaml:"duration"`      // 0 runs until interrupted
	RecycleEvery int           `yaml:"recycle_every"` // close a session after this many probes, 0 never
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// Log configures process logging.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console, json, or auto
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Sessions: map[Backend]session.Config{},
		Run: Run{
			Workers:      4,
			QueueSize:    256,
			Rate:         10,
			Interval:     time.Second,
			DrainTimeout: 5 * time.Second,
		},
		Metrics: Metrics{
			Enabled: false,
			Address: ":9090",
			Path:    "/metrics",
		},
		Log: Log{
			Level:  "info",
			Format: "auto",
		},
	}
}
