// Package metrics exports interning table counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yourusername/atomcache/internal/intern"
)

const (
	namespace = "atomcache"
	subsystem = "intern"
)

// Source reports the statistics exported by a Collector.
type Source interface {
	Stats() intern.Stats
}

type metric struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	value     func(intern.Stats) float64
}

// Collector reads a table's statistics on every scrape.
type Collector struct {
	source  Source
	metrics []metric
}

func newMetric(name, help string, valueType prometheus.ValueType, constLabels prometheus.Labels, value func(intern.Stats) float64) metric {
	return metric{
		desc:      prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, nil, constLabels),
		valueType: valueType,
		value:     value,
	}
}

// NewCollector returns a collector for source. constLabels are attached to
// every series, which lets several tables share one registry.
func NewCollector(source Source, constLabels prometheus.Labels) *Collector {
	counter, gauge := prometheus.CounterValue, prometheus.GaugeValue
	return &Collector{
		source: source,
		metrics: []metric{
			newMetric("inserts_total", "Insert calls.", counter, constLabels, func(s intern.Stats) float64 { return float64(s.Inserts) }),
			newMetric("hits_total", "Inserts that reused a live entry.", counter, constLabels, func(s intern.Stats) float64 { return float64(s.Hits) }),
			newMetric("misses_total", "Inserts that created a new entry.", counter, constLabels, func(s intern.Stats) float64 { return float64(s.Misses) }),
			newMetric("resurrections_total", "Inserts that skipped an entry awaiting removal.", counter, constLabels, func(s intern.Stats) float64 { return float64(s.Resurrections) }),
			newMetric("removes_total", "Entries removed after their last release.", counter, constLabels, func(s intern.Stats) float64 { return float64(s.Removes) }),
			newMetric("missed_removes_total", "Remove calls for entries that were not resident.", counter, constLabels, func(s intern.Stats) float64 { return float64(s.MissedRemoves) }),
			newMetric("entries", "Resident entries.", gauge, constLabels, func(s intern.Stats) float64 { return float64(s.Entries) }),
			newMetric("bytes", "Bytes of interned content.", gauge, constLabels, func(s intern.Stats) float64 { return float64(s.Bytes) }),
			newMetric("buckets", "Bucket count.", gauge, constLabels, func(s intern.Stats) float64 { return float64(s.Buckets) }),
			newMetric("max_bucket_len", "Entries in the fullest bucket.", gauge, constLabels, func(s intern.Stats) float64 { return float64(s.MaxBucketLen) }),
		},
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.valueType, m.value(s))
	}
}

// Register adds a collector for source to reg.
func Register(reg prometheus.Registerer, source Source, constLabels prometheus.Labels) error {
	return reg.Register(NewCollector(source, constLabels))
}

// Handler serves the metrics gathered by reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
