package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes a Registry to Prometheus. Metric names are prefixed
// with the namespace and dots become underscores, so
// "aggregator.leaves_proved" is served as "zkbatch_aggregator_leaves_proved".
//
// The set of metrics is dynamic, so Collector is an unchecked collector:
// Describe sends nothing.
type Collector struct {
	registry  *Registry
	namespace string
}

// NewCollector returns a Collector over r.
func NewCollector(r *Registry, namespace string) *Collector {
	return &Collector{registry: r, namespace: namespace}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	r := c.registry
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range sortedKeys(r.counters) {
		desc := prometheus.NewDesc(c.promName(name), name, nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(r.counters[name].Value()))
	}
	for _, name := range sortedKeys(r.gauges) {
		desc := prometheus.NewDesc(c.promName(name), name, nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(r.gauges[name].Value()))
	}
	for _, name := range sortedKeys(r.histograms) {
		snap := r.histograms[name].Snapshot()
		desc := prometheus.NewDesc(c.promName(name), name, nil, nil)
		ch <- prometheus.MustNewConstSummary(desc, uint64(snap.Count), snap.Sum, nil)
	}
}

func (c *Collector) promName(name string) string {
	n := strings.NewReplacer(".", "_", "-", "_").Replace(name)
	if c.namespace == "" {
		return n
	}
	return c.namespace + "_" + n
}

// Handler returns an http.Handler serving r, plus Go runtime and process
// metrics, in the Prometheus exposition format.
func Handler(r *Registry, namespace string) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(r, namespace),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
