package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsClient is the counters/histograms/gauges surface every component
// records against. Labels are free-form string maps, matching the shape
// callers (breaker, cache, search) already build.
type MetricsClient interface {
	IncrementCounter(name string, value float64)
	IncrementCounterWithLabels(name string, value float64, labels map[string]string)
	RecordHistogram(name string, value float64, labels map[string]string)
	RecordGauge(name string, value float64, labels map[string]string)
}

// PrometheusMetrics is the production MetricsClient, backed by client_golang.
// Metric vectors are created lazily per name so callers never need to
// pre-register anything.
type PrometheusMetrics struct {
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
	registerer prometheus.Registerer
}

// NewMetricsClient creates a PrometheusMetrics client registered against the
// default registry.
func NewMetricsClient() *PrometheusMetrics {
	return &PrometheusMetrics{
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		registerer: prometheus.DefaultRegisterer,
	}
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	return names
}

func (m *PrometheusMetrics) counterVec(name string, labels map[string]string) *prometheus.CounterVec {
	if cv, ok := m.counters[name]; ok {
		return cv
	}
	cv := promauto.With(m.registerer).NewCounterVec(prometheus.CounterOpts{
		Name: "mnemolite_" + name,
		Help: name + " total",
	}, labelNames(labels))
	m.counters[name] = cv
	return cv
}

func (m *PrometheusMetrics) histogramVec(name string, labels map[string]string) *prometheus.HistogramVec {
	if hv, ok := m.histograms[name]; ok {
		return hv
	}
	hv := promauto.With(m.registerer).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mnemolite_" + name,
		Help:    name + " distribution",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
	}, labelNames(labels))
	m.histograms[name] = hv
	return hv
}

func (m *PrometheusMetrics) gaugeVec(name string, labels map[string]string) *prometheus.GaugeVec {
	if gv, ok := m.gauges[name]; ok {
		return gv
	}
	gv := promauto.With(m.registerer).NewGaugeVec(prometheus.GaugeOpts{
		Name: "mnemolite_" + name,
		Help: name + " current value",
	}, labelNames(labels))
	m.gauges[name] = gv
	return gv
}

func (m *PrometheusMetrics) IncrementCounter(name string, value float64) {
	m.counterVec(name, nil).With(prometheus.Labels{}).Add(value)
}

func (m *PrometheusMetrics) IncrementCounterWithLabels(name string, value float64, labels map[string]string) {
	m.counterVec(name, labels).With(labels).Add(value)
}

func (m *PrometheusMetrics) RecordHistogram(name string, value float64, labels map[string]string) {
	m.histogramVec(name, labels).With(labels).Observe(value)
}

func (m *PrometheusMetrics) RecordGauge(name string, value float64, labels map[string]string) {
	m.gaugeVec(name, labels).With(labels).Set(value)
}

// NoopMetrics discards every call; useful for tests.
type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics { return &NoopMetrics{} }

func (NoopMetrics) IncrementCounter(string, float64)                           {}
func (NoopMetrics) IncrementCounterWithLabels(string, float64, map[string]string) {}
func (NoopMetrics) RecordHistogram(string, float64, map[string]string)         {}
func (NoopMetrics) RecordGauge(string, float64, map[string]string)             {}
