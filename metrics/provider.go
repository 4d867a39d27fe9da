// Package metrics defines the instruments the evaluation pool records into and
// adapters for in-memory, OpenTelemetry and Prometheus backends.
package metrics

// Provider constructs instruments by name. Asking twice for the same name
// returns an instrument recording into the same series.
// Implementations must be safe for concurrent use.
type Provider interface {
	Counter(name string, opts ...InstrumentOption) Counter
	UpDownCounter(name string, opts ...InstrumentOption) UpDownCounter
	Histogram(name string, opts ...InstrumentOption) Histogram
}

// Counter records monotonic counts (requests submitted, late replies).
type Counter interface {
	Add(n int64)
}

// UpDownCounter records a value that moves both ways (requests in flight).
type UpDownCounter interface {
	Add(n int64)
}

// Histogram records a distribution of measurements (evaluation latency in seconds).
type Histogram interface {
	Record(v float64)
}

// InstrumentConfig carries optional instrument metadata. Backends may ignore
// any of it.
type InstrumentConfig struct {
	Description string
	Unit        string
	// Labels are constant labels attached to every measurement.
	Labels map[string]string
	// Buckets are explicit histogram bucket upper bounds.
	Buckets []float64
}

// InstrumentOption mutates InstrumentConfig.
type InstrumentOption func(*InstrumentConfig)

func WithDescription(desc string) InstrumentOption {
	return func(c *InstrumentConfig) { c.Description = desc }
}

// WithUnit sets the unit, e.g. "1" or "s".
func WithUnit(unit string) InstrumentOption {
	return func(c *InstrumentConfig) { c.Unit = unit }
}

// WithLabels attaches constant labels. Keep cardinality bounded.
func WithLabels(labels map[string]string) InstrumentOption {
	return func(c *InstrumentConfig) {
		if len(labels) == 0 {
			return
		}
		if c.Labels == nil {
			c.Labels = make(map[string]string, len(labels))
		}
		for k, v := range labels {
			c.Labels[k] = v
		}
	}
}

// WithBuckets sets histogram bucket upper bounds.
func WithBuckets(bounds ...float64) InstrumentOption {
	return func(c *InstrumentConfig) { c.Buckets = append([]float64(nil), bounds...) }
}

func applyOptions(opts []InstrumentOption) InstrumentConfig {
	var cfg InstrumentConfig
	for _, o := range opts {
		if o != nil {
			o(&cfg)
		}
	}
	return cfg
}

// LatencyBuckets are the default bucket bounds, in seconds, for evaluation latency.
var LatencyBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30}
