package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Messages persisted, by message type",
		},
		[]string{"type"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_rate_limited_total",
			Help: "Sends rejected by the per-sender rate limiter",
		},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_connections",
			Help: "Currently open WebSocket connections",
		},
	)

	FanoutEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_fanout_events_total",
			Help: "Events published to conversation channels, by event type",
		},
		[]string{"type"},
	)

	FanoutDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_fanout_dropped_total",
			Help: "Slow consumers disconnected or relay events dropped because a queue was full",
		},
		[]string{"reason"},
	)

	BadFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_ws_bad_frames_total",
			Help: "Client frames rejected as malformed or unauthorized",
		},
	)
)
