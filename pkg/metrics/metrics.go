package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the status-broadcast
// pipeline. Constructed once at startup and injected into services.
type Metrics struct {
	registry *prometheus.Registry

	StatusBroadcasts      *prometheus.CounterVec
	StatusBroadcastErrors *prometheus.CounterVec
	BroadcastDuration     *prometheus.HistogramVec

	PubSubPublished *prometheus.CounterVec
	PubSubReceived  *prometheus.CounterVec

	ActiveConnections prometheus.Gauge
	MessagesSent      *prometheus.CounterVec
	SendFailures      prometheus.Counter
	NoSubscriberSends *prometheus.CounterVec

	DeadLetters prometheus.Counter
}

// New creates a Metrics set backed by its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		StatusBroadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskstream_status_broadcasts_total",
			Help: "Status messages broadcast, by status, channel type and task type",
		}, []string{"status", "channel_type", "task_type"}),
		StatusBroadcastErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskstream_status_broadcast_errors_total",
			Help: "Broadcast pipeline failures, by stage and channel type",
		}, []string{"error_type", "channel_type"}),
		BroadcastDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskstream_status_broadcast_duration_seconds",
			Help:    "Duration of broadcast pipeline operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		PubSubPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskstream_pubsub_published_total",
			Help: "Messages published to the pub/sub bus, by channel type",
		}, []string{"channel_type"}),
		PubSubReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskstream_pubsub_received_total",
			Help: "Messages received from the pub/sub bus, by channel type",
		}, []string{"channel_type"}),
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taskstream_websocket_connections",
			Help: "Currently registered WebSocket connections",
		}),
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskstream_websocket_messages_sent_total",
			Help: "Messages delivered to WebSocket connections, by target type",
		}, []string{"target_type"}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskstream_websocket_send_failures_total",
			Help: "WebSocket sends that failed and triggered connection cleanup",
		}),
		NoSubscriberSends: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskstream_websocket_no_subscriber_sends_total",
			Help: "Targeted sends dropped because no subscriber was registered, by target type",
		}, []string{"target_type"}),
		DeadLetters: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskstream_dead_letters_total",
			Help: "Tasks routed to the dead letter queue",
		}),
	}
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
