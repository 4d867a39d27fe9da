package metrics

import (
	"sync"
	"sync/atomic"
)

// BasicProvider keeps instruments in memory. It suits tests and processes
// without a metrics backend; values are read back with the Value helpers.
type BasicProvider struct {
	counters   registry[*BasicCounter]
	updowns    registry[*BasicUpDownCounter]
	histograms registry[*BasicHistogram]
}

func NewBasicProvider() *BasicProvider { return &BasicProvider{} }

// registry creates an instrument once per name.
type registry[T any] struct {
	mu    sync.Mutex
	items map[string]T
	meta  map[string]InstrumentConfig
}

func (r *registry[T]) get(name string, opts []InstrumentOption, newFn func() T) T {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.items[name]; ok {
		return v
	}
	if r.items == nil {
		r.items = make(map[string]T)
		r.meta = make(map[string]InstrumentConfig)
	}
	v := newFn()
	r.items[name] = v
	r.meta[name] = applyOptions(opts)
	return v
}

func (r *registry[T]) lookup(name string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[name]
	return v, ok
}

func (p *BasicProvider) Counter(name string, opts ...InstrumentOption) Counter {
	return p.counters.get(name, opts, func() *BasicCounter { return &BasicCounter{} })
}

func (p *BasicProvider) UpDownCounter(name string, opts ...InstrumentOption) UpDownCounter {
	return p.updowns.get(name, opts, func() *BasicUpDownCounter { return &BasicUpDownCounter{} })
}

func (p *BasicProvider) Histogram(name string, opts ...InstrumentOption) Histogram {
	return p.histograms.get(name, opts, func() *BasicHistogram { return &BasicHistogram{} })
}

// CounterValue returns the value of the named counter, or 0 if it was never created.
func (p *BasicProvider) CounterValue(name string) int64 {
	if c, ok := p.counters.lookup(name); ok {
		return c.Value()
	}
	return 0
}

// UpDownValue returns the value of the named up/down counter.
func (p *BasicProvider) UpDownValue(name string) int64 {
	if u, ok := p.updowns.lookup(name); ok {
		return u.Value()
	}
	return 0
}

// HistogramSnapshot returns the state of the named histogram.
func (p *BasicProvider) HistogramSnapshot(name string) HistSnapshot {
	if h, ok := p.histograms.lookup(name); ok {
		return h.Snapshot()
	}
	return HistSnapshot{}
}

// Description returns the description the named instrument was created with.
func (p *BasicProvider) Description(name string) string {
	for _, m := range []func(string) (InstrumentConfig, bool){
		p.counters.config, p.updowns.config, p.histograms.config,
	} {
		if cfg, ok := m(name); ok {
			return cfg.Description
		}
	}
	return ""
}

func (r *registry[T]) config(name string) (InstrumentConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.meta[name]
	return cfg, ok
}

type BasicCounter struct {
	val atomic.Int64
}

func (c *BasicCounter) Add(n int64) { c.val.Add(n) }

func (c *BasicCounter) Value() int64 { return c.val.Load() }

type BasicUpDownCounter struct {
	val atomic.Int64
}

func (u *BasicUpDownCounter) Add(n int64) { u.val.Add(n) }

func (u *BasicUpDownCounter) Value() int64 { return u.val.Load() }

// BasicHistogram tracks count, sum, min and max without buckets.
type BasicHistogram struct {
	mu    sync.Mutex
	count int64
	sum   float64
	min   float64
	max   float64
}

func (h *BasicHistogram) Record(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 || v < h.min {
		h.min = v
	}
	if h.count == 0 || v > h.max {
		h.max = v
	}
	h.count++
	h.sum += v
}

// HistSnapshot is a point-in-time copy of a BasicHistogram.
type HistSnapshot struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64
}

// Mean returns Sum/Count, or 0 for an empty histogram.
func (s HistSnapshot) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

func (h *BasicHistogram) Snapshot() HistSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HistSnapshot{Count: h.count, Sum: h.sum, Min: h.min, Max: h.max}
}
