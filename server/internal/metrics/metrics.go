package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyteller_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "storyteller_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "endpoint"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storyteller_active_sessions",
			Help: "Number of active story sessions",
		},
	)

	SessionsEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyteller_sessions_ended_total",
			Help: "Total number of ended sessions by reason",
		},
		[]string{"reason"},
	)

	SafetyAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyteller_safety_alerts_total",
			Help: "Total number of safety alerts by level",
		},
		[]string{"level"},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storyteller_events_dropped_total",
			Help: "Session events dropped because the queue was full",
		},
	)

	MessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storyteller_outbound_messages_dropped_total",
			Help: "Narrator messages dropped before reaching the remote conversation",
		},
	)

	ConversationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "storyteller_conversation_latency_seconds",
			Help: "Remote conversation call latency in seconds",
		},
		[]string{"op"},
	)
)
