// Package metrics exposes Prometheus instrumentation for the editor
// service, replacing the teacher's hand-rolled Metrics struct and JSON
// /metrics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/gauge/histogram the service registers.
type Metrics struct {
	ConnectionsActive     prometheus.Gauge
	ConnectionsTotal      prometheus.Counter
	MessagesReceivedTotal *prometheus.CounterVec
	MessagesSentTotal     *prometheus.CounterVec
	OperationsAppliedTotal prometheus.Counter
	TransformDuration     prometheus.Histogram
	StorageErrorsTotal    prometheus.Counter
	BroadcastErrorsTotal  prometheus.Counter
}

// New creates and registers the service's metrics against reg. Passing a
// fresh *prometheus.Registry (rather than the global DefaultRegisterer)
// keeps repeated construction in tests from panicking on duplicate
// registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "editor_connections_active",
			Help: "Number of currently connected editing sessions.",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "editor_connections_total",
			Help: "Total editing sessions accepted since startup.",
		}),
		MessagesReceivedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "editor_messages_received_total",
			Help: "Inbound WebSocket messages by type.",
		}, []string{"type"}),
		MessagesSentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "editor_messages_sent_total",
			Help: "Outbound WebSocket messages by type.",
		}, []string{"type"}),
		OperationsAppliedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "editor_operations_applied_total",
			Help: "Operations committed to a blip's authoritative content.",
		}),
		TransformDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "editor_transform_duration_seconds",
			Help:    "Latency of OpManager.Transform/TransformByManager calls.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
		}),
		StorageErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "editor_storage_errors_total",
			Help: "Failed storage operations.",
		}),
		BroadcastErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "editor_broadcast_errors_total",
			Help: "Failed Redis publish/subscribe operations.",
		}),
	}
}

// ObserveTransform records how long a transform call took.
func (m *Metrics) ObserveTransform(start time.Time) {
	m.TransformDuration.Observe(time.Since(start).Seconds())
}
