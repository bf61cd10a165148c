package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	outcomes        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	storageFailures *prometheus.CounterVec
	bindings        *prometheus.CounterVec
}

// NewMetrics registers the protocol collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "license",
			Name:      "protocol_outcomes_total",
			Help:      "Client protocol calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "license",
			Name:      "protocol_duration_seconds",
			Help:      "Client protocol call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		storageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "license",
			Name:      "storage_failures_total",
			Help:      "Persistence errors surfaced as internal failures.",
		}, []string{"operation"}),
		bindings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "license",
			Name:      "device_bindings_total",
			Help:      "Device binding attempts by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) observe(operation, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func (m *Metrics) storageFailure(operation string) {
	if m == nil {
		return
	}
	m.storageFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) binding(result string) {
	if m == nil {
		return
	}
	m.bindings.WithLabelValues(result).Inc()
}
