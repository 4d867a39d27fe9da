package metrics

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope used when no meter is supplied.
const MeterName = "github.com/ygrebnov/jqrender"

// OTelProvider records into an OpenTelemetry meter. Instruments that the
// meter refuses to create degrade to no-ops.
type OTelProvider struct {
	meter metric.Meter
}

// NewOTelProvider wraps meter. A nil meter selects the global meter provider.
func NewOTelProvider(meter metric.Meter) *OTelProvider {
	if meter == nil {
		meter = otel.Meter(MeterName)
	}
	return &OTelProvider{meter: meter}
}

func (p *OTelProvider) Counter(name string, opts ...InstrumentOption) Counter {
	cfg := applyOptions(opts)
	c, err := p.meter.Int64Counter(name,
		metric.WithDescription(cfg.Description),
		metric.WithUnit(cfg.Unit),
	)
	if err != nil {
		return noop{}
	}
	return otelCounter{c: c, attrs: attributeOption(cfg.Labels)}
}

func (p *OTelProvider) UpDownCounter(name string, opts ...InstrumentOption) UpDownCounter {
	cfg := applyOptions(opts)
	u, err := p.meter.Int64UpDownCounter(name,
		metric.WithDescription(cfg.Description),
		metric.WithUnit(cfg.Unit),
	)
	if err != nil {
		return noop{}
	}
	return otelUpDown{u: u, attrs: attributeOption(cfg.Labels)}
}

func (p *OTelProvider) Histogram(name string, opts ...InstrumentOption) Histogram {
	cfg := applyOptions(opts)
	hopts := []metric.Float64HistogramOption{
		metric.WithDescription(cfg.Description),
		metric.WithUnit(cfg.Unit),
	}
	if len(cfg.Buckets) > 0 {
		hopts = append(hopts, metric.WithExplicitBucketBoundaries(cfg.Buckets...))
	}
	h, err := p.meter.Float64Histogram(name, hopts...)
	if err != nil {
		return noop{}
	}
	return otelHistogram{h: h, attrs: attributeOption(cfg.Labels)}
}

func attributeOption(labels map[string]string) metric.MeasurementOption {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kvs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		kvs = append(kvs, attribute.String(k, labels[k]))
	}
	return metric.WithAttributeSet(attribute.NewSet(kvs...))
}

type otelCounter struct {
	c     metric.Int64Counter
	attrs metric.MeasurementOption
}

func (c otelCounter) Add(n int64) { c.c.Add(context.Background(), n, c.attrs) }

type otelUpDown struct {
	u     metric.Int64UpDownCounter
	attrs metric.MeasurementOption
}

func (u otelUpDown) Add(n int64) { u.u.Add(context.Background(), n, u.attrs) }

type otelHistogram struct {
	h     metric.Float64Histogram
	attrs metric.MeasurementOption
}

func (h otelHistogram) Record(v float64) { h.h.Record(context.Background(), v, h.attrs) }
