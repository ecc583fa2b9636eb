package catalog

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the catalog cache.
type Metrics struct {
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
}

// NewMetrics creates and registers catalog metrics. Registration happens
// once per process; subsequent calls return the same instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			CacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "catalog_cache_hits_total",
				Help: "Total number of catalog fetches served from cache",
			}),
			CacheMissesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "catalog_cache_misses_total",
				Help: "Total number of catalog fetches that listed upstream",
			}),
		}
	})
	return globalMetrics
}

// RecordHit increments the cache hit counter.
func (m *Metrics) RecordHit() {
	m.CacheHitsTotal.Inc()
}

// RecordMiss increments the cache miss counter.
func (m *Metrics) RecordMiss() {
	m.CacheMissesTotal.Inc()
}
