package config

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of DefaultConfig and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyTargetDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func applyTargetDefaults(cfg *Config) {
	for i := range cfg.Targets {
		t := &cfg.Targets[i]
		if t.Backend == "" {
			t.Backend = BackendHTTP
		}
		if t.Method == "" {
			t.Method = http.MethodGet
		}
		t.Method = strings.ToUpper(t.Method)
		if t.Name == "" {
			t.Name = t.URL
		}
	}
}

// Validate checks the configuration for errors. Call it again after
// overriding fields of a parsed Config.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}

	seen := make(map[string]bool, len(c.Targets))
	for i, t := range c.Targets {
		if t.URL == "" {
			return fmt.Errorf("targets[%d].url is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("targets[%d].name %q is duplicated", i, t.Name)
		}
		seen[t.Name] = true

		switch t.Backend {
		case BackendHTTP:
			u, err := url.Parse(t.URL)
			if err != nil {
				return fmt.Errorf("targets[%d].url: %w", i, err)
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return fmt.Errorf("targets[%d].url must be http or https", i)
			}
		case BackendGRPC:
		default:
			return fmt.Errorf("targets[%d].backend %q is not supported", i, t.Backend)
		}

		if t.Timeout < 0 {
			return fmt.Errorf("targets[%d].timeout must not be negative", i)
		}
	}

	for backend := range c.Sessions {
		if backend != BackendHTTP && backend != BackendGRPC {
			return fmt.Errorf("sessions.%s: backend is not supported", backend)
		}
	}

	if c.Run.Workers <= 0 {
		return fmt.Errorf("run.workers must be positive")
	}
	if c.Run.QueueSize <= 0 {
		return fmt.Errorf("run.queue_size must be positive")
	}
	if c.Run.Rate <= 0 {
		return fmt.Errorf("run.rate must be positive")
	}
	if c.Run.Interval <= 0 {
		return fmt.Errorf("run.interval must be positive")
	}
	if c.Run.Duration < 0 {
		return fmt.Errorf("run.duration must not be negative")
	}
	if c.Run.RecycleEvery < 0 {
		return fmt.Errorf("run.recycle_every must not be negative")
	}
	if c.Run.DrainTimeout <= 0 {
		return fmt.Errorf("run.drain_timeout must be positive")
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	switch c.Log.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("log.format must be auto, console or json")
	}

	return nil
}
