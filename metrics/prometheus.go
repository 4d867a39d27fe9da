package metrics

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusProvider registers instruments as Prometheus collectors.
// Counters become counters, up/down counters become gauges and histograms
// become histograms. Registering a name with the same labels twice reuses the existing collector.
type PrometheusProvider struct {
	reg prometheus.Registerer

	mu         sync.Mutex
	collectors map[string]prometheus.Collector
}

// NewPrometheusProvider registers into reg, or the default registerer when reg is nil.
func NewPrometheusProvider(reg prometheus.Registerer) *PrometheusProvider {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusProvider{reg: reg, collectors: make(map[string]prometheus.Collector)}
}

func help(name string, cfg InstrumentConfig) string {
	if cfg.Description != "" {
		return cfg.Description
	}
	return name
}

// seriesKey identifies a collector by name and constant labels, so pools
// sharing a provider keep separate series.
func seriesKey(name string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteString("," + k + "=" + labels[k])
	}
	return b.String()
}

// register returns the collector registered under key, registering c if
// none exists yet. Registration failures other than duplicates yield nil.
func (p *PrometheusProvider) register(key string, c prometheus.Collector) prometheus.Collector {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.collectors[key]; ok {
		return existing
	}
	if err := p.reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil
		}
		c = are.ExistingCollector
	}
	p.collectors[key] = c
	return c
}

func (p *PrometheusProvider) Counter(name string, opts ...InstrumentOption) Counter {
	cfg := applyOptions(opts)
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        name,
		Help:        help(name, cfg),
		ConstLabels: cfg.Labels,
	})
	if got, ok := p.register(seriesKey(name, cfg.Labels), c).(prometheus.Counter); ok {
		return promCounter{c: got}
	}
	return noop{}
}

func (p *PrometheusProvider) UpDownCounter(name string, opts ...InstrumentOption) UpDownCounter {
	cfg := applyOptions(opts)
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        name,
		Help:        help(name, cfg),
		ConstLabels: cfg.Labels,
	})
	if got, ok := p.register(seriesKey(name, cfg.Labels), g).(prometheus.Gauge); ok {
		return promGauge{g: got}
	}
	return noop{}
}

func (p *PrometheusProvider) Histogram(name string, opts ...InstrumentOption) Histogram {
	cfg := applyOptions(opts)
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        name,
		Help:        help(name, cfg),
		ConstLabels: cfg.Labels,
		Buckets:     buckets,
	})
	if got, ok := p.register(seriesKey(name, cfg.Labels), h).(prometheus.Histogram); ok {
		return promHistogram{h: got}
	}
	return noop{}
}

type promCounter struct{ c prometheus.Counter }

// Add ignores negative deltas; Prometheus counters only go up.
func (c promCounter) Add(n int64) {
	if n > 0 {
		c.c.Add(float64(n))
	}
}

type promGauge struct{ g prometheus.Gauge }

func (g promGauge) Add(n int64) { g.g.Add(float64(n)) }

type promHistogram struct{ h prometheus.Histogram }

func (h promHistogram) Record(v float64) { h.h.Observe(v) }
