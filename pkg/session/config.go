package session

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// Config holds backend-specific construction parameters.
// Keys are documented by each backend; the holder never inspects them.
type Config map[string]any

// Clone returns a shallow copy of c. A nil Config clones to an empty one.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	maps.Copy(out, c)
	return out
}

// Merge returns a new Config holding c overlaid with overrides.
// On key collision the override wins.
func (c Config) Merge(overrides Config) Config {
	out := c.Clone()
	maps.Copy(out, overrides)
	return out
}

// Unknown returns the sorted keys of c that are not in known.
func (c Config) Unknown(known ...string) []string {
	var out []string
	for k := range c {
		if !slices.Contains(known, k) {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

// The typed getters below report ok=false when the key is absent or nil,
// and an error when it holds a value of the wrong kind.

// Str returns the string stored under key.
func (c Config) Str(key string) (string, bool, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("%s: expected string, got %T", key, v)
	}
	return s, true, nil
}

// Bool returns the bool stored under key.
func (c Config) Bool(key string) (bool, bool, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return false, false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, false, fmt.Errorf("%s: expected bool, got %T", key, v)
	}
	return b, true, nil
}

// Float returns a numeric value under key as float64.
func (c Config) Float(key string) (float64, bool, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, false, fmt.Errorf("%s: expected number, got %T", key, v)
	}
	return f, true, nil
}

// Int returns an integral value under key.
func (c Config) Int(key string) (int, bool, error) {
	f, ok, err := c.Float(key)
	if err != nil || !ok {
		return 0, ok, err
	}
	if f != float64(int(f)) {
		return 0, false, fmt.Errorf("%s: expected integer, got %v", key, f)
	}
	return int(f), true, nil
}

// Duration accepts a time.Duration, a duration string such as "1m30s",
// or a plain number of seconds.
func (c Config) Duration(key string) (time.Duration, bool, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch d := v.(type) {
	case time.Duration:
		return d, true, nil
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return 0, false, fmt.Errorf("%s: %w", key, err)
		}
		return parsed, true, nil
	}
	if f, ok := toFloat(v); ok {
		return time.Duration(f * float64(time.Second)), true, nil
	}
	return 0, false, fmt.Errorf("%s: expected duration, got %T", key, v)
}

// StringMap returns a map of strings under key. YAML decodes a mapping nested
// in a Config as Config itself, so that, map[string]any and map[string]string
// are all accepted.
func (c Config) StringMap(key string) (map[string]string, bool, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return nil, false, nil
	}
	switch m := v.(type) {
	case map[string]string:
		return maps.Clone(m), true, nil
	case Config:
		return stringValues(key, m)
	case map[string]any:
		return stringValues(key, m)
	}
	return nil, false, fmt.Errorf("%s: expected map, got %T", key, v)
}

func stringValues(key string, m map[string]any) (map[string]string, bool, error) {
	out := make(map[string]string, len(m))
	for k, raw := range m {
		s, ok := raw.(string)
		if !ok {
			return nil, false, fmt.Errorf("%s.%s: expected string, got %T", key, k, raw)
		}
		out[k] = s
	}
	return out, true, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
