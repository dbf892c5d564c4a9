package telemetry

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRegistry implements core.MetricsRegistry. It lazily creates one
// Prometheus vector per metric name on first use, caching it under a
// read-write lock the same way the teacher's MetricInstruments caches one
// OTel instrument per name: a cheap RLock-guarded lookup on the hot path,
// falling back to a write-locked double-checked creation.
type PrometheusRegistry struct {
	registry *prometheus.Registry

	mu         sync.RWMutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusRegistry builds an empty registry with its own Prometheus
// collector registry, so repeated construction in tests never collides
// with the global default registry.
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{
		registry:   prometheus.NewRegistry(),
		counters:   map[string]*prometheus.CounterVec{},
		gauges:     map[string]*prometheus.GaugeVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
}

// Handler returns the net/http handler that exposes the registry's
// collected metrics in the Prometheus exposition format.
func (r *PrometheusRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Counter implements core.MetricsRegistry, incrementing a counter by one.
func (r *PrometheusRegistry) Counter(name string, labels ...string) {
	keys, values := splitLabelPairs(labels)
	vec := r.counterVec(name, keys)
	vec.WithLabelValues(values...).Inc()
}

// Gauge implements core.MetricsRegistry, setting a gauge to value.
func (r *PrometheusRegistry) Gauge(name string, value float64, labels ...string) {
	keys, values := splitLabelPairs(labels)
	vec := r.gaugeVec(name, keys)
	vec.WithLabelValues(values...).Set(value)
}

// Histogram implements core.MetricsRegistry, observing value.
func (r *PrometheusRegistry) Histogram(name string, value float64, labels ...string) {
	keys, values := splitLabelPairs(labels)
	vec := r.histogramVec(name, keys)
	vec.WithLabelValues(values...).Observe(value)
}

// EmitWithContext implements core.MetricsRegistry. The registry does not
// currently use ctx (Prometheus export is pull-based), but the parameter is
// kept so callers can later thread span/trace correlation in without a
// signature change, matching the teacher's EmitWithContext entry point.
func (r *PrometheusRegistry) EmitWithContext(_ context.Context, name string, value float64, labels ...string) {
	r.Gauge(name, value, labels...)
}

func (r *PrometheusRegistry) counterVec(name string, keys []string) *prometheus.CounterVec {
	cacheKey := vecCacheKey(name, keys)

	r.mu.RLock()
	vec, ok := r.counters[cacheKey]
	r.mu.RUnlock()
	if ok {
		return vec
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.counters[cacheKey]; ok {
		return vec
	}
	vec = promauto.With(r.registry).NewCounterVec(prometheus.CounterOpts{
		Name: sanitizeMetricName(name),
		Help: name,
	}, keys)
	r.counters[cacheKey] = vec
	return vec
}

func (r *PrometheusRegistry) gaugeVec(name string, keys []string) *prometheus.GaugeVec {
	cacheKey := vecCacheKey(name, keys)

	r.mu.RLock()
	vec, ok := r.gauges[cacheKey]
	r.mu.RUnlock()
	if ok {
		return vec
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.gauges[cacheKey]; ok {
		return vec
	}
	vec = promauto.With(r.registry).NewGaugeVec(prometheus.GaugeOpts{
		Name: sanitizeMetricName(name),
		Help: name,
	}, keys)
	r.gauges[cacheKey] = vec
	return vec
}

func (r *PrometheusRegistry) histogramVec(name string, keys []string) *prometheus.HistogramVec {
	cacheKey := vecCacheKey(name, keys)

	r.mu.RLock()
	vec, ok := r.histograms[cacheKey]
	r.mu.RUnlock()
	if ok {
		return vec
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.histograms[cacheKey]; ok {
		return vec
	}
	vec = promauto.With(r.registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    sanitizeMetricName(name),
		Help:    name,
		Buckets: prometheus.DefBuckets,
	}, keys)
	r.histograms[cacheKey] = vec
	return vec
}

// splitLabelPairs separates a flat key,value,key,value... slice into
// parallel key and value slices. An odd trailing element (a malformed
// call site) is dropped rather than panicking.
func splitLabelPairs(labels []string) (keys, values []string) {
	n := len(labels) / 2
	keys = make([]string, 0, n)
	values = make([]string, 0, n)
	for i := 0; i+1 < len(labels); i += 2 {
		keys = append(keys, labels[i])
		values = append(values, labels[i+1])
	}
	return keys, values
}

// vecCacheKey distinguishes metrics that share a name but were first seen
// with different label sets, since a Prometheus vector's label schema is
// fixed at creation.
func vecCacheKey(name string, keys []string) string {
	return name + "|" + strings.Join(keys, ",")
}

// sanitizeMetricName replaces characters Prometheus metric names disallow
// (anything but [a-zA-Z0-9_:]) with underscores.
func sanitizeMetricName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
