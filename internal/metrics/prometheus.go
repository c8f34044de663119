package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_events_total",
			Help: "Inbound chat events by kind (message, command, tombstone, ignored, duplicate, invalid)",
		},
		[]string{"kind"},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Completed webhook deliveries by final status",
		},
		[]string{"status"},
	)

	DeliveryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_delivery_attempts_total",
			Help: "Individual HTTP attempts by result (ok, status, timeout, error)",
		},
		[]string{"result"},
	)

	DeliveryLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhook_delivery_latency_seconds",
			Help:    "Latency of individual webhook HTTP attempts",
			Buckets: prometheus.DefBuckets,
		},
	)

	TemplateFieldErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_template_field_errors_total",
			Help: "Template fields dropped from forwarded payloads because they could not be rendered",
		},
	)

	RepliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_replies_total",
			Help: "Webhook responses relayed back into rooms",
		},
		[]string{"status"},
	)

	WorkerActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_active",
			Help: "Number of running event workers",
		},
	)

	WorkerProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_processed_total",
			Help: "Events acknowledged by workers",
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current RabbitMQ depth of the inbound events queue",
		},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		EventsReceived,
		DeliveriesTotal,
		DeliveryAttempts,
		DeliveryLatency,
		TemplateFieldErrors,
		RepliesTotal,
		WorkerActive,
		WorkerProcessed,
		QueueDepth,
	}
}

// Init registers metrics with Prometheus
func Init() {
	Register(prometheus.DefaultRegisterer)
}

// Register registers all bridge metrics with reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(collectors()...)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
