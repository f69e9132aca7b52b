package gateway

import (
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/khuboolhai/chat-service/internal/broadcast"
	"github.com/khuboolhai/chat-service/internal/presence"
	"github.com/khuboolhai/chat-service/internal/protocol"
	"github.com/khuboolhai/chat-service/internal/ratelimit"
	"github.com/khuboolhai/chat-service/internal/store"
	"github.com/khuboolhai/chat-service/internal/ws"
)

// fakeConn is a net.Conn that records written bytes, so tests can assert
// on error frames sent directly to a connection.
type fakeConn struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (f *fakeConn) Read([]byte) (int, error) { return 0, net.ErrClosed }
func (f *fakeConn) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.Write(p)
}
func (f *fakeConn) Close() error                     { return nil }
func (f *fakeConn) LocalAddr() net.Addr              { return nil }
func (f *fakeConn) RemoteAddr() net.Addr             { return nil }
func (f *fakeConn) SetDeadline(time.Time) error      { return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) wrote(s string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Contains(f.buf.String(), s)
}

// fakeStore is an in-memory MessageStore with the same validation
// contract as the Postgres store.
type fakeStore struct {
	mu       sync.Mutex
	convs    map[string]*store.Conversation
	messages []*store.Message
	failNext bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{convs: make(map[string]*store.Conversation)}
}

func (f *fakeStore) addConversation(userA, userB string) *store.Conversation {
	lo, hi := userA, userB
	if hi < lo {
		lo, hi = hi, lo
	}
	conv := &store.Conversation{ID: uuid.New().String(), UserLo: lo, UserHi: hi}
	f.convs[conv.ID] = conv
	return conv
}

func (f *fakeStore) GetConversation(_ context.Context, id string) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return conv, nil
}

func (f *fakeStore) AppendMessage(_ context.Context, convID, senderID, text string) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNext {
		f.failNext = false
		return nil, context.DeadlineExceeded
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, store.ErrEmptyText
	}
	conv, ok := f.convs[convID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !conv.HasParticipant(senderID) {
		return nil, store.ErrNotParticipant
	}

	m := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: convID,
		SenderID:       senderID,
		Text:           text,
		CreatedAt:      time.Now(),
	}
	f.messages = append(f.messages, m)
	return m, nil
}

func (f *fakeStore) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

// recorder captures broadcaster deliveries per connection.
type recorder struct {
	mu       sync.Mutex
	received map[string][]string
}

func (r *recorder) deliver(connID string, data []byte) {
	r.mu.Lock()
	r.received[connID] = append(r.received[connID], string(data))
	r.mu.Unlock()
}

func (r *recorder) got(connID, substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.received[connID] {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

func (r *recorder) count(connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received[connID])
}

// recordingSink captures platform notifications.
type recordingSink struct {
	mu    sync.Mutex
	notes []broadcast.Notification
}

func (s *recordingSink) Notify(n broadcast.Notification) {
	s.mu.Lock()
	s.notes = append(s.notes, n)
	s.mu.Unlock()
}

// denyLimiter rejects everything.
type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, ratelimit.Rule) (bool, error) {
	return false, nil
}

type fixture struct {
	g     *Gateway
	st    *fakeStore
	rec   *recorder
	track *presence.Tracker
	sink  *recordingSink
}

func setupGateway(t *testing.T) *fixture {
	t.Helper()
	st := newFakeStore()
	rec := &recorder{received: make(map[string][]string)}
	track := presence.NewTracker()
	sink := &recordingSink{}
	g := New(st, broadcast.NewLocal(rec.deliver), track, ratelimit.Nop{}, sink)
	return &fixture{g: g, st: st, rec: rec, track: track, sink: sink}
}

func newConn(userID string) *ws.Connection {
	return &ws.Connection{
		ID:     uuid.New().String(),
		UserID: userID,
		Conn:   &fakeConn{},
	}
}

func join(g *Gateway, c *ws.Connection, convID string) {
	g.handleJoin(c, protocol.JoinConversationMsg{ConversationID: convID})
}

func TestSendMessageFanOut(t *testing.T) {
	fx := setupGateway(t)
	conv := fx.st.addConversation("alice", "bob")

	aliceConn := newConn("alice")
	bobChat := newConn("bob")
	bobTab := newConn("bob") // second tab, personal channel only

	for _, c := range []*ws.Connection{aliceConn, bobChat, bobTab} {
		fx.g.OnConnect(c)
	}
	join(fx.g, aliceConn, conv.ID)
	join(fx.g, bobChat, conv.ID)

	fx.g.handleSend(aliceConn, protocol.SendMessageMsg{
		ConversationID: conv.ID,
		Text:           "  hello bob  ",
	})

	if fx.st.messageCount() != 1 {
		t.Fatalf("expected 1 persisted message, got %d", fx.st.messageCount())
	}

	// Full message to every conversation-channel member, the sender's
	// connection included: the broadcast confirms the optimistic insert.
	if !fx.rec.got(aliceConn.ID, "new_message") {
		t.Error("sender connection should receive the broadcast confirmation")
	}
	if !fx.rec.got(bobChat.ID, "new_message") || !fx.rec.got(bobChat.ID, "hello bob") {
		t.Error("conversation member should receive the full message")
	}

	// The second tab never joined the conversation channel, so it gets
	// only the lightweight notification.
	if fx.rec.got(bobTab.ID, "new_message") {
		t.Error("personal channel must not carry the full message object")
	}
	if !fx.rec.got(bobTab.ID, "message_notification") {
		t.Error("other participant's personal channel should receive a notification")
	}

	if len(fx.sink.notes) != 1 || fx.sink.notes[0].UserID != "bob" {
		t.Errorf("expected one platform notification for bob, got %+v", fx.sink.notes)
	}
}

func TestSendMessageNotificationIsTruncated(t *testing.T) {
	fx := setupGateway(t)
	conv := fx.st.addConversation("alice", "bob")

	aliceConn := newConn("alice")
	bobConn := newConn("bob")
	fx.g.OnConnect(aliceConn)
	fx.g.OnConnect(bobConn)

	long := strings.Repeat("x", 200)
	fx.g.handleSend(aliceConn, protocol.SendMessageMsg{ConversationID: conv.ID, Text: long})

	want := strings.Repeat("x", NotifyPreviewRunes)
	if !fx.rec.got(bobConn.ID, want) {
		t.Fatal("notification preview missing")
	}
	if fx.rec.got(bobConn.ID, strings.Repeat("x", NotifyPreviewRunes+1)) {
		t.Error("notification preview not truncated")
	}
}

func TestSendValidationErrors(t *testing.T) {
	fx := setupGateway(t)
	conv := fx.st.addConversation("alice", "bob")

	cases := []struct {
		name     string
		sender   string
		convID   string
		text     string
		wantCode string
	}{
		{"empty text", "alice", conv.ID, "   ", protocol.CodeInvalidMessage},
		{"missing conversation id", "alice", "", "hi", protocol.CodeInvalidMessage},
		{"unknown conversation", "alice", uuid.New().String(), "hi", protocol.CodeNotFound},
		{"non-participant", "mallory", conv.ID, "hi", protocol.CodeNotParticipant},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newConn(tc.sender)
			fx.g.OnConnect(c)
			join(fx.g, c, conv.ID)

			fx.g.handleSend(c, protocol.SendMessageMsg{ConversationID: tc.convID, Text: tc.text})

			if fx.st.messageCount() != 0 {
				t.Fatalf("rejected send persisted a message")
			}
			if !c.Conn.(*fakeConn).wrote(tc.wantCode) {
				t.Errorf("expected %q error event on the offending connection", tc.wantCode)
			}
			if fx.rec.got(c.ID, "new_message") {
				t.Error("rejected send must not be broadcast")
			}
		})
	}
}

func TestSendPersistenceFailure(t *testing.T) {
	fx := setupGateway(t)
	conv := fx.st.addConversation("alice", "bob")
	fx.st.failNext = true

	aliceConn := newConn("alice")
	bobConn := newConn("bob")
	fx.g.OnConnect(aliceConn)
	fx.g.OnConnect(bobConn)
	join(fx.g, aliceConn, conv.ID)
	join(fx.g, bobConn, conv.ID)

	fx.g.handleSend(aliceConn, protocol.SendMessageMsg{ConversationID: conv.ID, Text: "hi"})

	if !aliceConn.Conn.(*fakeConn).wrote(protocol.CodeSendFailed) {
		t.Error("sender should receive a send_failed error event")
	}
	if fx.rec.got(bobConn.ID, "new_message") {
		t.Error("failed persistence must not be broadcast")
	}
}

func TestRateLimitedSend(t *testing.T) {
	st := newFakeStore()
	conv := st.addConversation("alice", "bob")
	rec := &recorder{received: make(map[string][]string)}
	g := New(st, broadcast.NewLocal(rec.deliver), presence.NewTracker(), denyLimiter{}, &recordingSink{})

	c := newConn("alice")
	g.OnConnect(c)
	g.handleSend(c, protocol.SendMessageMsg{ConversationID: conv.ID, Text: "hi"})

	if st.messageCount() != 0 {
		t.Error("rate-limited send must not persist")
	}
	if !c.Conn.(*fakeConn).wrote(protocol.CodeRateLimited) {
		t.Error("expected rate_limited error event")
	}
}

func TestTypingRelayExcludesOrigin(t *testing.T) {
	fx := setupGateway(t)
	conv := fx.st.addConversation("alice", "bob")

	aliceConn := newConn("alice")
	bobConn := newConn("bob")
	fx.g.OnConnect(aliceConn)
	fx.g.OnConnect(bobConn)
	join(fx.g, aliceConn, conv.ID)
	join(fx.g, bobConn, conv.ID)

	fx.g.handleTyping(aliceConn, protocol.TypingMsg{ConversationID: conv.ID})

	if fx.rec.got(aliceConn.ID, "user_typing") {
		t.Error("origin connection must not receive its own typing echo")
	}
	if !fx.rec.got(bobConn.ID, "user_typing") || !fx.rec.got(bobConn.ID, "alice") {
		t.Error("peer should receive the typing indicator with the sender's identity")
	}

	fx.g.handleStopTyping(aliceConn, protocol.StopTypingMsg{ConversationID: conv.ID})
	if !fx.rec.got(bobConn.ID, "user_stopped_typing") {
		t.Error("peer should receive the stop-typing indicator")
	}
}

func TestJoinIsIdempotentAndAccumulates(t *testing.T) {
	fx := setupGateway(t)
	convA := fx.st.addConversation("alice", "bob")
	convB := fx.st.addConversation("alice", "carol")

	aliceConn := newConn("alice")
	bobConn := newConn("bob")
	fx.g.OnConnect(aliceConn)
	fx.g.OnConnect(bobConn)

	// Repeated joins plus a second conversation on the same connection.
	join(fx.g, aliceConn, convA.ID)
	join(fx.g, aliceConn, convA.ID)
	join(fx.g, aliceConn, convB.ID)
	join(fx.g, bobConn, convA.ID)

	fx.g.handleSend(bobConn, protocol.SendMessageMsg{ConversationID: convA.ID, Text: "one"})

	found := 0
	for _, msg := range fx.rec.received[aliceConn.ID] {
		if strings.Contains(msg, "new_message") {
			found++
		}
	}
	if found != 1 {
		t.Errorf("duplicate join must not duplicate delivery, got %d copies", found)
	}
}

func TestConnectDisconnectLifecycle(t *testing.T) {
	fx := setupGateway(t)
	conv := fx.st.addConversation("alice", "bob")

	c1 := newConn("alice")
	c2 := newConn("alice")
	fx.g.OnConnect(c1)
	fx.g.OnConnect(c2)
	join(fx.g, c1, conv.ID)

	if !fx.track.IsOnline("alice") {
		t.Fatal("alice should be online")
	}

	fx.g.OnDisconnect(c1)
	if !fx.track.IsOnline("alice") {
		t.Error("alice should stay online while the second tab remains")
	}

	// Disconnected connection receives nothing further.
	bobConn := newConn("bob")
	fx.g.OnConnect(bobConn)
	fx.g.handleSend(bobConn, protocol.SendMessageMsg{ConversationID: conv.ID, Text: "hi"})
	if fx.rec.got(c1.ID, "new_message") {
		t.Error("dropped connection must not receive conversation broadcasts")
	}

	fx.g.OnDisconnect(c2)
	if fx.track.IsOnline("alice") {
		t.Error("alice should be offline after last disconnect")
	}
}
