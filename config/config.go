package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds file-level pool settings.
type Config struct {
	// Workers is the number of persistent workers.
	Workers int `yaml:"workers" json:"workers"`

	// QueueSize is the per-worker job queue capacity.
	QueueSize int `yaml:"queue_size" json:"queue_size"`

	// DefaultTimeout bounds evaluations that carry no timeout of their own.
	DefaultTimeout Duration `yaml:"default_timeout" json:"default_timeout"`

	// CacheSize is the number of compiled filters kept by the default evaluator.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// Validate rejects negative settings.
func (c Config) Validate() error {
	var errs []error
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be >= 0, got %d", c.Workers))
	}
	if c.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("queue_size must be >= 0, got %d", c.QueueSize))
	}
	if c.DefaultTimeout < 0 {
		errs = append(errs, fmt.Errorf("default_timeout must be >= 0, got %s", time.Duration(c.DefaultTimeout)))
	}
	if c.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("cache_size must be >= 0, got %d", c.CacheSize))
	}
	return errors.Join(errs...)
}

// Duration is a time.Duration read from either a Go duration string ("1500ms")
// or a number of seconds (1.5).
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func parseDuration(s string) (Duration, error) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return Duration(v * float64(time.Second)), nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return Duration(v), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	v, err := parseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = v
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case float64:
		*d = Duration(t * float64(time.Second))
		return nil
	case string:
		v, err := parseDuration(t)
		if err != nil {
			return err
		}
		*d = v
		return nil
	case nil:
		*d = 0
		return nil
	default:
		return fmt.Errorf("invalid duration %s", data)
	}
}

func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }
