// Package metrics backs ports.MetricsCollector with Prometheus.
package metrics

import (
	"context"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/ports"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "ref"

// Collector registers metric vectors lazily the first time a name is used. The
// label names of a metric are fixed by its first observation.
type Collector struct {
	namespace string
	registry  *prometheus.Registry
	factory   promauto.Factory

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// New builds a collector with its own registry.
func New(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	registry := prometheus.NewRegistry()
	return &Collector{
		namespace:  namespace,
		registry:   registry,
		factory:    promauto.With(registry),
		counters:   map[string]*prometheus.CounterVec{},
		gauges:     map[string]*prometheus.GaugeVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
}

// Registry exposes the underlying registry for exporters and tests.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// IncCounter implements ports.MetricsCollector.
func (c *Collector) IncCounter(_ context.Context, name string, labels map[string]string) {
	c.mu.Lock()
	vec, ok := c.counters[name]
	if !ok {
		vec = c.factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      name,
			Help:      "Counter " + name,
		}, labelNames(labels))
		c.counters[name] = vec
	}
	c.mu.Unlock()
	vec.With(labels).Inc()
}

// SetGauge implements ports.MetricsCollector.
func (c *Collector) SetGauge(_ context.Context, name string, value float64, labels map[string]string) {
	c.mu.Lock()
	vec, ok := c.gauges[name]
	if !ok {
		vec = c.factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      name,
			Help:      "Gauge " + name,
		}, labelNames(labels))
		c.gauges[name] = vec
	}
	c.mu.Unlock()
	vec.With(labels).Set(value)
}

// ObserveHistogram implements ports.MetricsCollector.
func (c *Collector) ObserveHistogram(_ context.Context, name string, value float64, labels map[string]string) {
	c.mu.Lock()
	vec, ok := c.histograms[name]
	if !ok {
		vec = c.factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: c.namespace,
			Name:      name,
			Help:      "Histogram " + name,
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 14),
		}, labelNames(labels))
		c.histograms[name] = vec
	}
	c.mu.Unlock()
	vec.With(labels).Observe(value)
}

// WriteTextfile writes every registered metric in the node-exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

var _ ports.MetricsCollector = (*Collector)(nil)
