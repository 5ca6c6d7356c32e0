package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus instruments for the relay pipeline.
type Metrics struct {
	EventsIngestedTotal prometheus.Counter
	DeliveriesTotal     *prometheus.CounterVec
	DeliveryLatency     prometheus.Histogram
	PendingDeliveries   prometheus.Gauge
	FanoutJobsTotal     *prometheus.CounterVec
}

// NewMetrics creates and registers relay metric instruments against reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		EventsIngestedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventrelay_events_ingested_total",
			Help: "Total number of events accepted by the ingestion endpoint.",
		}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventrelay_deliveries_total",
			Help: "Total delivery attempts, labeled by outcome.",
		}, []string{"status"}),
		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventrelay_delivery_latency_seconds",
			Help:    "Latency of outbound delivery HTTP calls.",
			Buckets: prometheus.DefBuckets,
		}),
		PendingDeliveries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eventrelay_pending_deliveries",
			Help: "Delivery jobs currently enqueued or in flight.",
		}),
		FanoutJobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventrelay_fanout_jobs_total",
			Help: "Total fan-out jobs processed, labeled by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.EventsIngestedTotal, m.DeliveriesTotal, m.DeliveryLatency, m.PendingDeliveries, m.FanoutJobsTotal)

	return m
}

// RecordDelivery records a delivery attempt with the given outcome and latency.
func (m *Metrics) RecordDelivery(status string, latencySeconds float64) {
	m.DeliveriesTotal.WithLabelValues(status).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}

// RecordFanout records a completed fan-out job outcome.
func (m *Metrics) RecordFanout(outcome string) {
	m.FanoutJobsTotal.WithLabelValues(outcome).Inc()
}
