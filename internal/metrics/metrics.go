// Package metrics provides Prometheus instrumentation for the chat
// service. It exposes gauges for connection, presence, and subscription
// counts, counters for message throughput, and a histogram for
// send-path latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "khubool_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// OnlineUsers tracks the number of distinct users with at least one
	// live connection.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "khubool_online_users",
		Help: "Current number of distinct online users",
	})

	// ConversationSubscriptions tracks live conversation-topic subscriptions.
	ConversationSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "khubool_conversation_subscriptions",
		Help: "Current number of active conversation channel subscriptions",
	})

	// MessagesTotal counts messages through the gateway, labeled by outcome:
	// "sent", "delivered", or "rejected".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "khubool_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"outcome"})

	// NotificationsTotal counts cross-conversation message notifications
	// pushed to personal channels.
	NotificationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "khubool_message_notifications_total",
		Help: "Total number of message notifications pushed to personal channels",
	})

	// SendLatency records end-to-end send-message handling latency in seconds
	// (validation through persistence and fan-out).
	SendLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "khubool_send_latency_seconds",
		Help:    "Send-message handling latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		OnlineUsers,
		ConversationSubscriptions,
		MessagesTotal,
		NotificationsTotal,
		SendLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
