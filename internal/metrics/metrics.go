package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openjob_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openjob_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openjob_chat_messages_sent_total",
			Help: "Total chat messages persisted",
		},
	)

	NotificationsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openjob_notifications_sent_total",
			Help: "Total notifications persisted",
		},
	)

	// Realtime metrics
	EventsRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openjob_realtime_events_routed_total",
			Help: "Realtime events by delivery path",
		},
		[]string{"path"}, // "local", "broker" or "dropped"
	)

	ConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "openjob_realtime_connections_open",
			Help: "Currently open websocket connections",
		},
		[]string{"kind"}, // "user" or "chat"
	)

	MalformedEnvelopes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openjob_broker_malformed_envelopes_total",
			Help: "Broker messages dropped because they failed to decode",
		},
	)

	// Infrastructure metrics
	BrokerPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openjob_broker_publish_errors_total",
			Help: "Failed broker publishes",
		},
	)

	PostgresLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "openjob_postgres_latency_seconds",
			Help:    "PostgreSQL query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)
