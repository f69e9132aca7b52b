package broadcast

import (
	"encoding/json"
	"log"

	"github.com/nats-io/nats.go"

	"github.com/khuboolhai/chat-service/internal/metrics"
)

// notifySubject is where cross-cutting user alerts are published for the
// platform's notification service to consume.
const notifySubject = "khubool.notify"

// Notification is a fire-and-forget alert for a user, consumed by the
// external notification service (email digests, in-app bell, push).
type Notification struct {
	UserID    string `json:"userId"`
	Kind      string `json:"kind"` // e.g. "message_received"
	Text      string `json:"text"`
	RelatedID string `json:"relatedId,omitempty"`
}

// NotificationSink accepts notifications without any delivery guarantee.
// A lost notification has no correctness consequence for chat itself.
type NotificationSink interface {
	Notify(n Notification)
}

// NATSNotifier publishes notifications to the shared NATS subject.
type NATSNotifier struct {
	conn *nats.Conn
}

// NewNATSNotifier wraps an existing NATS connection.
func NewNATSNotifier(conn *nats.Conn) *NATSNotifier {
	return &NATSNotifier{conn: conn}
}

// Notify publishes the notification. Failures are logged and dropped.
func (p *NATSNotifier) Notify(n Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		log.Printf("broadcast: marshal notification for user=%s: %v", n.UserID, err)
		return
	}
	if err := p.conn.Publish(notifySubject, data); err != nil {
		log.Printf("broadcast: publish notification for user=%s: %v", n.UserID, err)
		return
	}
	metrics.NotificationsTotal.Inc()
}

// NoopNotifier discards notifications; used when no broker is configured.
type NoopNotifier struct{}

func (NoopNotifier) Notify(Notification) {}
