package geocode

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Lookup result labels.
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultRejected = "rejected"
)

// Metrics names as constants for consistency.
const (
	MetricLookups        = "geocode_lookups_total"
	MetricLookupDuration = "geocode_lookup_duration_seconds"
	MetricCacheHits      = "geocode_cache_hits_total"
	MetricCacheMisses    = "geocode_cache_misses_total"
	MetricBreakerOpen    = "geocode_circuit_breaker_open"
)

// Metrics contains Prometheus metrics for geocoding.
type Metrics struct {
	lookups        *prometheus.CounterVec
	lookupDuration prometheus.Histogram
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	breakerOpen    prometheus.Gauge
}

// NewMetrics creates geocoding metrics. Call Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricLookups,
			Help: "Total number of upstream geocoding lookups by result",
		}, []string{"result"}),
		lookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricLookupDuration,
			Help:    "Upstream geocoding lookup latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricCacheHits,
			Help: "Total number of geocoding cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricCacheMisses,
			Help: "Total number of geocoding cache misses",
		}),
		breakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricBreakerOpen,
			Help: "1 when the geocoding circuit breaker is open",
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.lookups, m.lookupDuration, m.cacheHits, m.cacheMisses, m.breakerOpen} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveLookup records one upstream lookup.
func (m *Metrics) ObserveLookup(result string, d time.Duration) {
	m.lookups.WithLabelValues(result).Inc()
	m.lookupDuration.Observe(d.Seconds())
}

// ObserveCache records a cache hit or miss.
func (m *Metrics) ObserveCache(hit bool) {
	if hit {
		m.cacheHits.Inc()
		return
	}
	m.cacheMisses.Inc()
}

// SetBreakerOpen records the breaker state.
func (m *Metrics) SetBreakerOpen(open bool) {
	if open {
		m.breakerOpen.Set(1)
		return
	}
	m.breakerOpen.Set(0)
}
