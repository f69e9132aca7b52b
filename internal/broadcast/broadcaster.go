// Package broadcast provides topic-scoped fan-out for the realtime
// gateway. Connections subscribe to named topics (one personal topic per
// user plus one topic per conversation) and published payloads are
// delivered to every subscribed connection, optionally excluding the
// origin. Two implementations exist: Local for single-process
// deployments and tests, and NATS for multi-instance fan-out.
package broadcast

import (
	"strings"
	"sync"

	"github.com/khuboolhai/chat-service/internal/metrics"
)

// Topic name helpers. Personal topics deliver cross-conversation
// notifications; conversation topics deliver message and typing fan-out.
func UserTopic(userID string) string         { return "user." + userID }
func ConversationTopic(convID string) string { return "conv." + convID }

// DeliverFunc hands a payload to a single local connection. Delivery
// failures are the transport layer's problem; the broadcaster does not
// retry.
type DeliverFunc func(connID string, data []byte)

// Broadcaster is the pub/sub capability the gateway builds on.
type Broadcaster interface {
	// Subscribe adds a connection to a topic. Idempotent.
	Subscribe(connID, topic string)

	// Unsubscribe removes a connection from a topic.
	Unsubscribe(connID, topic string)

	// DropConn removes a connection from every topic it joined. Called on
	// transport disconnect.
	DropConn(connID string)

	// Publish delivers payload to every connection subscribed to topic,
	// skipping exceptConnID when non-empty.
	Publish(topic string, payload []byte, exceptConnID string) error
}

// Local is an in-process Broadcaster. All state is guarded by a single
// mutex; membership maps are kept in both directions so DropConn does not
// scan every topic.
type Local struct {
	mu      sync.RWMutex
	topics  map[string]map[string]struct{} // topic -> connIDs
	conns   map[string]map[string]struct{} // connID -> topics
	deliver DeliverFunc
}

// NewLocal creates a Local broadcaster that hands payloads to deliver.
func NewLocal(deliver DeliverFunc) *Local {
	return &Local{
		topics:  make(map[string]map[string]struct{}),
		conns:   make(map[string]map[string]struct{}),
		deliver: deliver,
	}
}

// Subscribe adds connID to topic. Re-subscribing is a no-op.
func (l *Local) Subscribe(connID, topic string) {
	l.mu.Lock()
	set, ok := l.topics[topic]
	if !ok {
		set = make(map[string]struct{})
		l.topics[topic] = set
	}
	if _, dup := set[connID]; !dup {
		set[connID] = struct{}{}
		if l.conns[connID] == nil {
			l.conns[connID] = make(map[string]struct{})
		}
		l.conns[connID][topic] = struct{}{}
		if isConversationTopic(topic) {
			metrics.ConversationSubscriptions.Inc()
		}
	}
	l.mu.Unlock()
}

// Unsubscribe removes connID from topic.
func (l *Local) Unsubscribe(connID, topic string) {
	l.mu.Lock()
	l.removeLocked(connID, topic)
	l.mu.Unlock()
}

// DropConn removes connID from all topics.
func (l *Local) DropConn(connID string) {
	l.mu.Lock()
	for topic := range l.conns[connID] {
		l.removeLocked(connID, topic)
	}
	l.mu.Unlock()
}

// removeLocked removes one membership edge. Caller holds l.mu.
func (l *Local) removeLocked(connID, topic string) {
	set, ok := l.topics[topic]
	if !ok {
		return
	}
	if _, member := set[connID]; !member {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(l.topics, topic)
	}
	delete(l.conns[connID], topic)
	if len(l.conns[connID]) == 0 {
		delete(l.conns, connID)
	}
	if isConversationTopic(topic) {
		metrics.ConversationSubscriptions.Dec()
	}
}

// Publish delivers payload to every subscriber of topic except
// exceptConnID. Subscribers are snapshotted under the read lock so a slow
// deliver cannot block membership changes.
func (l *Local) Publish(topic string, payload []byte, exceptConnID string) error {
	l.mu.RLock()
	targets := make([]string, 0, len(l.topics[topic]))
	for connID := range l.topics[topic] {
		if connID != exceptConnID {
			targets = append(targets, connID)
		}
	}
	l.mu.RUnlock()

	for _, connID := range targets {
		l.deliver(connID, payload)
	}
	return nil
}

// Subscribers returns the current subscriber count for a topic.
func (l *Local) Subscribers(topic string) int {
	l.mu.RLock()
	n := len(l.topics[topic])
	l.mu.RUnlock()
	return n
}

// IsSubscribed reports whether connID is currently joined to topic.
func (l *Local) IsSubscribed(connID, topic string) bool {
	l.mu.RLock()
	_, ok := l.conns[connID][topic]
	l.mu.RUnlock()
	return ok
}

func isConversationTopic(topic string) bool {
	return strings.HasPrefix(topic, "conv.")
}
