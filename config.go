package jqrender

import (
	"log/slog"
	"time"

	"github.com/ygrebnov/errorc"

	fileconfig "github.com/ygrebnov/jqrender/config"
	"github.com/ygrebnov/jqrender/metrics"
)

// config holds Pool configuration.
type config struct {
	// Workers is the number of persistent workers.
	// Default: max(1, NumCPU-1)
	Workers int

	// QueueSize is the capacity of each worker's job queue.
	// Default: 16
	QueueSize int

	// DefaultTimeout bounds requests whose Options.Timeout is zero.
	// Default: 30s
	DefaultTimeout time.Duration

	// CacheSize is the compiled filter cache size of the default evaluator.
	// Ignored when Evaluator is set.
	// Default: DefaultCacheSize
	CacheSize int

	// Evaluator runs filters. Default: a GoJQ evaluator.
	Evaluator Evaluator

	// Logger receives pool lifecycle events. Default: nil (no logging).
	Logger *slog.Logger

	// Metrics records pool instruments. Default: metrics.NoopProvider.
	Metrics metrics.Provider
}

func invalidConfig(msg string) error {
	return errorc.With(ErrInvalidConfig, errorc.String("", msg))
}

// Option configures a Pool. Use NewPool(opts...).
type Option func(*config) error

// WithWorkers sets the number of workers (must be > 0).
func WithWorkers(n int) Option {
	return func(cfg *config) error {
		if n <= 0 {
			return invalidConfig("WithWorkers requires n > 0")
		}
		cfg.Workers = n
		return nil
	}
}

// WithQueueSize sets the per-worker job queue capacity (must be >= 0).
func WithQueueSize(n int) Option {
	return func(cfg *config) error {
		if n < 0 {
			return invalidConfig("WithQueueSize requires n >= 0")
		}
		cfg.QueueSize = n
		return nil
	}
}

// WithDefaultTimeout sets the timeout applied to requests without their own (must be > 0).
func WithDefaultTimeout(d time.Duration) Option {
	return func(cfg *config) error {
		if d <= 0 {
			return invalidConfig("WithDefaultTimeout requires d > 0")
		}
		cfg.DefaultTimeout = d
		return nil
	}
}

// WithCacheSize sets the compiled filter cache size of the default evaluator (must be > 0).
func WithCacheSize(n int) Option {
	return func(cfg *config) error {
		if n <= 0 {
			return invalidConfig("WithCacheSize requires n > 0")
		}
		cfg.CacheSize = n
		return nil
	}
}

// WithEvaluator replaces the default GoJQ evaluator.
func WithEvaluator(ev Evaluator) Option {
	return func(cfg *config) error {
		if ev == nil {
			return invalidConfig("WithEvaluator requires a non-nil evaluator")
		}
		cfg.Evaluator = ev
		return nil
	}
}

// WithLogger sets the logger for pool lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) error { cfg.Logger = l; return nil }
}

// WithMetrics sets the metrics provider. A nil provider disables metrics.
func WithMetrics(p metrics.Provider) Option {
	return func(cfg *config) error {
		if p == nil {
			p = metrics.NewNoopProvider()
		}
		cfg.Metrics = p
		return nil
	}
}

// WithConfig applies the non-zero settings of a file configuration.
func WithConfig(c fileconfig.Config) Option {
	return func(cfg *config) error {
		if err := c.Validate(); err != nil {
			return invalidConfig(err.Error())
		}
		if c.Workers > 0 {
			cfg.Workers = c.Workers
		}
		if c.QueueSize > 0 {
			cfg.QueueSize = c.QueueSize
		}
		if c.DefaultTimeout > 0 {
			cfg.DefaultTimeout = c.DefaultTimeout.Std()
		}
		if c.CacheSize > 0 {
			cfg.CacheSize = c.CacheSize
		}
		return nil
	}
}
