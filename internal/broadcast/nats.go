package broadcast

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// subjectPrefix namespaces all chat subjects on the shared NATS cluster.
const subjectPrefix = "khubool.chat."

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "khubool-chat",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// wireEnvelope wraps a published payload with the origin connection ID so
// receiving instances can honor the publish-except semantics.
type wireEnvelope struct {
	Except string          `json:"except,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// NATS is a Broadcaster that fans out through a NATS cluster so multiple
// gateway instances can serve the same conversation. Local topic
// membership is tracked in an embedded Local broadcaster; one NATS
// subscription per topic exists while the topic has local subscribers.
type NATS struct {
	conn  *nats.Conn
	local *Local

	mu   sync.Mutex
	subs map[string]*nats.Subscription // topic -> NATS subscription
}

// NewNATS connects to NATS and returns a ready Broadcaster. Payloads
// received from the cluster are delivered to local subscribers via deliver.
func NewNATS(config NATSConfig, deliver DeliverFunc) (*NATS, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("broadcast: nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("broadcast: nats reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("broadcast: nats connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("broadcast: nats connect: %w", err)
	}
	log.Printf("broadcast: connected to nats at %s", nc.ConnectedUrl())

	return &NATS{
		conn:  nc,
		local: NewLocal(deliver),
		subs:  make(map[string]*nats.Subscription),
	}, nil
}

// Subscribe adds the connection to the topic and opens the topic's NATS
// subscription if this is the first local subscriber.
func (n *NATS) Subscribe(connID, topic string) {
	n.local.Subscribe(connID, topic)

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.subs[topic]; ok {
		return
	}

	sub, err := n.conn.Subscribe(subjectPrefix+topic, func(msg *nats.Msg) {
		var env wireEnvelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Printf("broadcast: bad envelope on %s: %v", msg.Subject, err)
			return
		}
		_ = n.local.Publish(topic, env.Data, env.Except)
	})
	if err != nil {
		log.Printf("broadcast: nats subscribe %s failed: %v", topic, err)
		return
	}
	n.subs[topic] = sub
}

// Unsubscribe removes the connection from the topic; the NATS subscription
// is closed once no local subscriber remains.
func (n *NATS) Unsubscribe(connID, topic string) {
	n.local.Unsubscribe(connID, topic)
	n.reapTopic(topic)
}

// DropConn removes the connection from every topic it joined.
func (n *NATS) DropConn(connID string) {
	n.mu.Lock()
	topics := make([]string, 0, len(n.subs))
	for topic := range n.subs {
		topics = append(topics, topic)
	}
	n.mu.Unlock()

	n.local.DropConn(connID)
	for _, topic := range topics {
		n.reapTopic(topic)
	}
}

// Publish routes the payload through NATS; the local fan-out happens when
// the message comes back on the subject subscription, the same path remote
// instances take.
func (n *NATS) Publish(topic string, payload []byte, exceptConnID string) error {
	env, err := json.Marshal(wireEnvelope{Except: exceptConnID, Data: payload})
	if err != nil {
		return fmt.Errorf("broadcast: marshal envelope: %w", err)
	}
	if err := n.conn.Publish(subjectPrefix+topic, env); err != nil {
		return fmt.Errorf("broadcast: nats publish %s: %w", topic, err)
	}
	return nil
}

// Conn exposes the underlying NATS connection for co-located publishers
// such as the notification sink.
func (n *NATS) Conn() *nats.Conn {
	return n.conn
}

// Close drains the NATS connection.
func (n *NATS) Close() {
	n.mu.Lock()
	for topic, sub := range n.subs {
		_ = sub.Unsubscribe()
		delete(n.subs, topic)
	}
	n.mu.Unlock()
	n.conn.Close()
}

// reapTopic closes the topic's NATS subscription when the last local
// subscriber has left.
func (n *NATS) reapTopic(topic string) {
	if n.local.Subscribers(topic) > 0 {
		return
	}
	n.mu.Lock()
	if sub, ok := n.subs[topic]; ok {
		_ = sub.Unsubscribe()
		delete(n.subs, topic)
	}
	n.mu.Unlock()
}
