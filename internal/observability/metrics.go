package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshi_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// WebSocketConnectionsTotal is the gauge of total WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meshi_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshi_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// LiveSubscriptionsActive tracks open live queries per collection.
	LiveSubscriptionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "meshi_live_subscriptions_active",
		Help: "Number of open live query subscriptions",
	}, []string{"collection"})

	// LiveSnapshotsSent counts snapshots pushed to subscribers.
	LiveSnapshotsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshi_live_snapshots_sent_total",
		Help: "Total number of ordered snapshots delivered to live subscribers",
	}, []string{"collection"})

	// BlobBytesStored counts stored blob bytes by folder.
	BlobBytesStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshi_blob_bytes_stored_total",
		Help: "Total number of blob bytes written to storage",
	}, []string{"folder"})

	// AuthEvents counts authentication outcomes.
	AuthEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshi_auth_events_total",
		Help: "Authentication events by method and outcome",
	}, []string{"method", "outcome"})
)

// RecordAuth increments the auth counter for one attempt.
func RecordAuth(method string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	AuthEvents.WithLabelValues(method, outcome).Inc()
}
