package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics implements Metrics on the global OpenTelemetry meter
// provider. Exporter wiring is left to the host process; with no provider
// installed the instruments are no-ops.
type OTelMetrics struct {
	meter    metric.Meter
	mu       sync.Mutex
	counters map[string]metric.Float64Counter
	gauges   map[string]metric.Float64Gauge
}

// NewOTelMetrics builds a metrics collector scoped to the given
// instrumentation name.
func NewOTelMetrics(scope string) *OTelMetrics {
	if scope == "" {
		scope = "github.com/quantfeed/tradecore"
	}
	return &OTelMetrics{
		meter:    otel.Meter(scope),
		counters: make(map[string]metric.Float64Counter),
		gauges:   make(map[string]metric.Float64Gauge),
	}
}

// IncCounter adds value to the named counter.
func (m *OTelMetrics) IncCounter(name string, value float64, labels map[string]string) {
	counter, err := m.counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), value, metric.WithAttributes(attrs(labels)...))
}

// SetGauge records the latest value for the named gauge.
func (m *OTelMetrics) SetGauge(name string, value float64, labels map[string]string) {
	gauge, err := m.gauge(name)
	if err != nil {
		return
	}
	gauge.Record(context.Background(), value, metric.WithAttributes(attrs(labels)...))
}

func (m *OTelMetrics) counter(name string) (metric.Float64Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[name]; ok {
		return c, nil
	}
	c, err := m.meter.Float64Counter(name)
	if err != nil {
		return nil, err
	}
	m.counters[name] = c
	return c, nil
}

func (m *OTelMetrics) gauge(name string) (metric.Float64Gauge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.gauges[name]; ok {
		return g, nil
	}
	g, err := m.meter.Float64Gauge(name)
	if err != nil {
		return nil, err
	}
	m.gauges[name] = g
	return g, nil
}

func attrs(labels map[string]string) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		out = append(out, attribute.String(k, v))
	}
	return out
}
