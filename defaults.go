package jqrender

import (
	"runtime"
	"time"

	"github.com/ygrebnov/jqrender/metrics"
)

const (
	// DefaultTimeout bounds pooled evaluations without an explicit timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultQueueSize is the per-worker job queue capacity.
	DefaultQueueSize = 16
)

// DefaultWorkers returns max(1, NumCPU-1), leaving one CPU to the callers.
func DefaultWorkers() int {
	return max(1, runtime.NumCPU()-1)
}

// defaultConfig centralizes default values for config.
// The evaluator is built in NewPool so that CacheSize can be applied first.
func defaultConfig() config {
	return config{
		Workers:        DefaultWorkers(),
		QueueSize:      DefaultQueueSize,
		DefaultTimeout: DefaultTimeout,
		CacheSize:      DefaultCacheSize,
		Metrics:        metrics.NewNoopProvider(),
	}
}

// validateConfig checks invariants that individual options cannot see.
func validateConfig(cfg *config) error {
	switch {
	case cfg.Workers <= 0:
		return invalidConfig("workers must be > 0")
	case cfg.QueueSize < 0:
		return invalidConfig("queue size must be >= 0")
	case cfg.DefaultTimeout <= 0:
		return invalidConfig("default timeout must be > 0")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopProvider()
	}
	return nil
}
