package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stream Metrics
var (
	// StreamActiveConnections tracks the number of live-update connections
	StreamActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_active_connections",
			Help: "Number of currently registered live-update connections",
		},
	)

	// StreamBroadcastsTotal tracks broadcast events pushed to the registry
	StreamBroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_broadcasts_total",
			Help: "Total events handed to the broadcaster",
		},
	)

	// StreamBroadcastDuration tracks per-broadcast fan-out duration in seconds
	StreamBroadcastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stream_broadcast_duration_seconds",
			Help:    "Fan-out duration per broadcast in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	// StreamClientsEvicted tracks connections removed on write failure or backpressure
	StreamClientsEvicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_clients_evicted_total",
			Help: "Connections evicted from the registry by reason",
		},
		[]string{"reason"},
	)

	// StreamHeartbeatFailures tracks keep-alive writes that surfaced a dead transport
	StreamHeartbeatFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_heartbeat_failures_total",
			Help: "Heartbeat writes that failed and triggered cleanup",
		},
	)

	// StreamStopTimeoutsTotal tracks broadcaster stops that exceeded the grace period
	StreamStopTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_stop_timeouts_total",
			Help: "Broadcaster shutdowns that hit the stop timeout",
		},
	)
)

// Ingestion Metrics
var (
	// MessagesStoredTotal tracks persisted message rows by direction
	MessagesStoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_stored_total",
			Help: "Persisted message rows by direction",
		},
		[]string{"direction"},
	)

	// MessagePersistFailures tracks failed message inserts by direction
	MessagePersistFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_persist_failures_total",
			Help: "Failed message inserts by direction",
		},
		[]string{"direction"},
	)

	// DeliveryDispatchTotal tracks carrier dispatch attempts by kind and status
	DeliveryDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_dispatch_total",
			Help: "Carrier dispatch attempts by kind (send/auto_reply) and status",
		},
		[]string{"kind", "status"},
	)
)
