package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts key-value backend errors by operation type.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podium_redis_errors_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// WebSocketRoomConnections is the gauge of sessions per room.
	WebSocketRoomConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "podium_websocket_room_connections",
		Help: "Number of WebSocket sessions per room",
	}, []string{"room_id"})

	// WebSocketConnectionsTotal is the gauge of total WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "podium_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketEventsTotal counts WebSocket events by type.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podium_websocket_events_total",
		Help: "Total WebSocket events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podium_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// MessageThroughput counts messages processed per room and type.
	MessageThroughput = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podium_message_throughput_total",
		Help: "Total number of chat messages processed",
	}, []string{"room_id", "message_type"})

	// ModerationJobsTotal counts moderation jobs by kind and outcome.
	ModerationJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podium_moderation_jobs_total",
		Help: "Total moderation jobs processed by kind and outcome",
	}, []string{"kind", "outcome"})

	// ModerationQueueDepth is the gauge of jobs waiting in the moderation queue.
	ModerationQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "podium_moderation_queue_depth",
		Help: "Number of jobs currently queued for the moderation pipeline",
	})

	// ContentFlagsTotal counts content-filter flags by category.
	ContentFlagsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podium_content_flags_total",
		Help: "Total content-filter flags by category",
	}, []string{"category"})
)
