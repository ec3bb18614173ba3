package pin

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricPinsCreated     = "pins_created_total"
	MetricPinsRejected    = "pins_rejected_total"
	MetricPinIndexSize    = "pin_index_size"
	MetricLiveFeedClients = "pin_live_feed_clients"
)

// Metrics contains Prometheus metrics for pin operations.
// All operations are thread-safe.
type Metrics struct {
	pinsCreated     prometheus.Counter
	pinsRejected    *prometheus.CounterVec
	indexSize       prometheus.Gauge
	liveFeedClients prometheus.Gauge
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		pinsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricPinsCreated,
			Help: "Total number of pins created",
		}),
		pinsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPinsRejected,
			Help: "Total number of pin creations rejected by validation, by reason",
		}, []string{"reason"}),
		indexSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricPinIndexSize,
			Help: "Number of pins held in the spatial index",
		}),
		liveFeedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricLiveFeedClients,
			Help: "Number of connected live pin feed clients",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.pinsCreated,
		m.pinsRejected,
		m.indexSize,
		m.liveFeedClients,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncPinsCreated increments the created counter.
func (m *Metrics) IncPinsCreated() {
	m.pinsCreated.Inc()
}

// IncPinsRejected increments the rejected counter for reason ("rating", "coordinates").
func (m *Metrics) IncPinsRejected(reason string) {
	m.pinsRejected.WithLabelValues(reason).Inc()
}

// SetIndexSize records the spatial index size.
func (m *Metrics) SetIndexSize(n int) {
	m.indexSize.Set(float64(n))
}

// SetLiveFeedClients records the number of live feed subscribers.
func (m *Metrics) SetLiveFeedClients(n int) {
	m.liveFeedClients.Set(float64(n))
}
