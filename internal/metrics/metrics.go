package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geminichat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geminichat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geminichat_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	// Chat room metrics
	MessagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geminichat_messages_appended_total",
			Help: "Messages appended to room logs",
		},
		[]string{"sender"},
	)

	RepliesCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geminichat_replies_completed_total",
			Help: "Simulated replies appended to a log",
		},
	)

	RepliesCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geminichat_replies_cancelled_total",
			Help: "Scheduled replies dropped by view teardown",
		},
	)

	StaleCallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geminichat_stale_callbacks_total",
			Help: "Deferred callbacks discarded because their view epoch ended",
		},
		[]string{"kind"}, // "reply" or "page"
	)

	PageLoads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geminichat_page_loads_total",
			Help: "Older pages revealed",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "geminichat_active_sessions",
			Help: "Open chat room views",
		},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "geminichat_websocket_clients",
			Help: "Connected websocket clients",
		},
	)

	// Storage metrics
	StoreOperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geminichat_store_operation_latency_seconds",
			Help:    "Latency of chat log store operations",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"backend", "operation"},
	)

	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geminichat_store_operation_errors_total",
			Help: "Chat log store operations that failed",
		},
		[]string{"backend", "operation"},
	)
)
