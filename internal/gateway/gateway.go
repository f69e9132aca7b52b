// Package gateway implements the connection-scoped realtime protocol:
// admission of authenticated connections into their personal channel,
// conversation channel membership, send-message routing through
// persistence and fan-out, and typing relays. Each connection's events run
// to completion in its read goroutine; the only shared mutable state is
// the presence tracker and channel membership, both owned by injected
// services.
package gateway

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/khuboolhai/chat-service/internal/broadcast"
	"github.com/khuboolhai/chat-service/internal/metrics"
	"github.com/khuboolhai/chat-service/internal/presence"
	"github.com/khuboolhai/chat-service/internal/protocol"
	"github.com/khuboolhai/chat-service/internal/ratelimit"
	"github.com/khuboolhai/chat-service/internal/store"
	"github.com/khuboolhai/chat-service/internal/ws"
)

// NotifyPreviewRunes is the length of the truncated text carried by a
// message notification; the full message object only travels on the
// conversation channel.
const NotifyPreviewRunes = 50

// MessageStore is the slice of the persistence layer the gateway needs.
// AppendMessage enforces participant membership and text validation and
// persists atomically; the gateway maps its sentinel errors onto protocol
// error events instead of dropping them silently.
type MessageStore interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	AppendMessage(ctx context.Context, convID, senderID, text string) (*store.Message, error)
}

// Gateway wires the dispatcher's protocol events to persistence, presence,
// and fan-out.
type Gateway struct {
	store       MessageStore
	bcast       broadcast.Broadcaster
	presence    presence.Presence
	limiter     ratelimit.Checker
	sink        broadcast.NotificationSink
	sendTimeout time.Duration
}

// New creates a Gateway.
func New(st MessageStore, bcast broadcast.Broadcaster, tracker presence.Presence,
	limiter ratelimit.Checker, sink broadcast.NotificationSink) *Gateway {
	return &Gateway{
		store:       st,
		bcast:       bcast,
		presence:    tracker,
		limiter:     limiter,
		sink:        sink,
		sendTimeout: 15 * time.Second,
	}
}

// Bind attaches the gateway to a WebSocket server: connection lifecycle
// callbacks plus a dispatcher with all protocol handlers registered.
func (g *Gateway) Bind(server *ws.Server) {
	d := ws.NewMessageDispatcher()
	d.Register(protocol.TypeJoinConversation, g.handleJoin)
	d.Register(protocol.TypeSendMessage, g.handleSend)
	d.Register(protocol.TypeTyping, g.handleTyping)
	d.Register(protocol.TypeStopTyping, g.handleStopTyping)

	server.SetOnConnect(g.OnConnect)
	server.SetOnDisconnect(g.OnDisconnect)
	server.SetOnMessage(d.Dispatch)
}

// OnConnect admits an authenticated connection: it is tracked as online
// and joined to its personal channel, through which cross-conversation
// notifications arrive.
func (g *Gateway) OnConnect(c *ws.Connection) {
	g.presence.Connect(c.UserID, c.ID)
	g.bcast.Subscribe(c.ID, broadcast.UserTopic(c.UserID))
}

// OnDisconnect discards the connection's presence entry and all channel
// memberships. Nothing else needs cleanup: channel membership is the only
// per-connection state the gateway holds.
func (g *Gateway) OnDisconnect(c *ws.Connection) {
	g.presence.Disconnect(c.UserID, c.ID)
	g.bcast.DropConn(c.ID)
}

// handleJoin subscribes the connection to a conversation channel. Joining
// is idempotent and repeated joins across conversations accumulate: a
// connection may deliberately watch several conversations at once (e.g. a
// list view). Membership authorization is not checked here: the write
// path enforces it, and subscribing to a channel only ever yields data the
// REST surface would serve the user anyway after its own participant check.
func (g *Gateway) handleJoin(c *ws.Connection, msg interface{}) {
	join, ok := msg.(protocol.JoinConversationMsg)
	if !ok {
		return
	}
	if join.ConversationID == "" {
		ws.SendError(c, protocol.CodeInvalidMessage, "conversationId is required")
		return
	}
	g.bcast.Subscribe(c.ID, broadcast.ConversationTopic(join.ConversationID))
}

// handleSend validates, persists, and fans out a chat message. The full
// message object is broadcast to the conversation channel (the sender's
// connections included; that broadcast is the authoritative confirmation
// of the optimistic local insert), and a truncated notification goes to
// the other participant's personal channel so they learn of the message
// even without having joined the conversation channel.
func (g *Gateway) handleSend(c *ws.Connection, msg interface{}) {
	send, ok := msg.(protocol.SendMessageMsg)
	if !ok {
		return
	}
	start := time.Now()

	if send.ConversationID == "" {
		ws.SendError(c, protocol.CodeInvalidMessage, "conversationId is required")
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return
	}
	if err := ValidateText(send.Text); err != nil {
		ws.SendError(c, protocol.CodeInvalidMessage, err.Error())
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.sendTimeout)
	defer cancel()

	if allowed, _ := g.limiter.Allow(ctx, c.UserID, ratelimit.RuleSend); !allowed {
		ws.SendError(c, protocol.CodeRateLimited, "sending too fast, slow down")
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return
	}

	m, err := g.store.AppendMessage(ctx, send.ConversationID, c.UserID, send.Text)
	if err != nil {
		g.sendAppendError(c, err)
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return
	}
	metrics.MessagesTotal.WithLabelValues("sent").Inc()

	g.PublishMessage(ctx, c.UserID, m)
	metrics.SendLatency.Observe(time.Since(start).Seconds())
}

// PublishMessage fans a persisted message out: the full object to the
// conversation channel (the sender's connections included) and a truncated
// notification to the other participant's personal channel. Shared by the
// realtime send path and the REST fallback send.
func (g *Gateway) PublishMessage(ctx context.Context, senderID string, m *store.Message) {
	data, err := protocol.NewServerMessage(protocol.TypeNewMessage, protocol.NewMessageMsg{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Text:           m.Text,
		Read:           m.Read,
		CreatedAt:      m.CreatedAt,
	})
	if err != nil {
		log.Printf("gateway: build new_message conv=%s: %v", m.ConversationID, err)
		return
	}
	if err := g.bcast.Publish(broadcast.ConversationTopic(m.ConversationID), data, ""); err != nil {
		log.Printf("gateway: broadcast conv=%s: %v", m.ConversationID, err)
	}
	metrics.MessagesTotal.WithLabelValues("delivered").Inc()

	g.notifyRecipient(ctx, senderID, m)
}

// notifyRecipient pushes the lightweight preview to the other
// participant's personal channel and fires the platform notification sink.
func (g *Gateway) notifyRecipient(ctx context.Context, senderID string, m *store.Message) {
	conv, err := g.store.GetConversation(ctx, m.ConversationID)
	if err != nil {
		log.Printf("gateway: lookup conversation for notify conv=%s: %v", m.ConversationID, err)
		return
	}
	other := conv.Other(senderID)
	if other == "" {
		return
	}

	preview := store.TruncateRunes(m.Text, NotifyPreviewRunes)
	data, err := protocol.NewServerMessage(protocol.TypeMessageNotification, protocol.MessageNotificationMsg{
		ConversationID: m.ConversationID,
		Text:           preview,
	})
	if err != nil {
		log.Printf("gateway: build message_notification conv=%s: %v", m.ConversationID, err)
		return
	}
	if err := g.bcast.Publish(broadcast.UserTopic(other), data, ""); err != nil {
		log.Printf("gateway: notify user=%s: %v", other, err)
		return
	}
	metrics.NotificationsTotal.Inc()

	g.sink.Notify(broadcast.Notification{
		UserID:    other,
		Kind:      "message_received",
		Text:      preview,
		RelatedID: m.ID,
	})
}

// handleTyping relays a typing indicator to every other connection in the
// conversation channel. Purely ephemeral: no state retained, a dropped
// event has no correctness consequence.
func (g *Gateway) handleTyping(c *ws.Connection, msg interface{}) {
	typing, ok := msg.(protocol.TypingMsg)
	if !ok {
		return
	}
	g.relayTyping(c, typing.ConversationID, protocol.TypeUserTyping)
}

// handleStopTyping relays the end of a typing indicator.
func (g *Gateway) handleStopTyping(c *ws.Connection, msg interface{}) {
	stop, ok := msg.(protocol.StopTypingMsg)
	if !ok {
		return
	}
	g.relayTyping(c, stop.ConversationID, protocol.TypeUserStoppedTyping)
}

func (g *Gateway) relayTyping(c *ws.Connection, convID, msgType string) {
	if convID == "" {
		ws.SendError(c, protocol.CodeInvalidMessage, "conversationId is required")
		return
	}

	payload := protocol.UserTypingMsg{UserID: c.UserID, ConversationID: convID}
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("gateway: build %s conn=%s: %v", msgType, c.ID, err)
		return
	}
	// The origin connection never receives its own typing echo.
	if err := g.bcast.Publish(broadcast.ConversationTopic(convID), data, c.ID); err != nil {
		log.Printf("gateway: relay %s conv=%s: %v", msgType, convID, err)
	}
}

// sendAppendError maps storage sentinel errors onto protocol error events
// so the sender always learns why a message was rejected.
func (g *Gateway) sendAppendError(c *ws.Connection, err error) {
	switch {
	case errors.Is(err, store.ErrEmptyText):
		ws.SendError(c, protocol.CodeInvalidMessage, "message text is empty")
	case errors.Is(err, store.ErrNotFound):
		ws.SendError(c, protocol.CodeNotFound, "conversation not found")
	case errors.Is(err, store.ErrNotParticipant):
		ws.SendError(c, protocol.CodeNotParticipant, "not a participant of this conversation")
	default:
		log.Printf("gateway: append message conn=%s: %v", c.ID, err)
		ws.SendError(c, protocol.CodeSendFailed, "failed to send message")
	}
}
