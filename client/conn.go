// Package client is the Go client for the chat service: a WebSocket
// connection wrapper with typed event handlers, and a Controller that
// maintains client-side conversation state (optimistic sends, pagination,
// typing indicators) against the realtime event stream.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/khuboolhai/chat-service/internal/protocol"
)

// Handlers receives decoded server events. All callbacks are invoked from
// the read loop goroutine; they must not block for long. Nil callbacks are
// skipped.
type Handlers struct {
	OnMessage      func(protocol.NewMessageMsg)
	OnNotification func(protocol.MessageNotificationMsg)
	OnTyping       func(protocol.UserTypingMsg)
	OnStopTyping   func(protocol.UserStoppedTypingMsg)
	OnError        func(protocol.ErrorMsg)
	OnDisconnect   func(error)
}

// Conn is a single authenticated connection to the chat gateway.
type Conn struct {
	conn     net.Conn
	handlers Handlers

	mu        sync.Mutex // guards writes and the identity fields
	userID    string
	connID    string
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the gateway's WebSocket endpoint, passing the
// credential as the token query parameter the handshake expects, and
// starts a background read loop dispatching to h.
func Dial(ctx context.Context, rawURL, token string, h Handlers) (*Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, _, err := ws.Dial(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("client: dial: %w", err)
	}

	c := &Conn{
		conn:     conn,
		handlers: h,
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// WaitForConnected blocks until the server's connected event has arrived
// or the context is cancelled.
func (c *Conn) WaitForConnected(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return fmt.Errorf("client: connection closed before handshake completed")
		case <-ticker.C:
			c.mu.Lock()
			ok := c.userID != ""
			c.mu.Unlock()
			if ok {
				return nil
			}
		}
	}
}

// UserID returns the identity the server resolved the credential to, or
// an empty string before the handshake completes.
func (c *Conn) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// JoinConversation subscribes this connection to a conversation's
// realtime fan-out.
func (c *Conn) JoinConversation(conversationID string) error {
	return c.send(protocol.JoinConversationMsg{
		Type:           protocol.TypeJoinConversation,
		ConversationID: conversationID,
	})
}

// SendMessage sends a chat message. Delivery confirmation arrives as a
// new_message event on the conversation channel; rejection arrives as an
// error event.
func (c *Conn) SendMessage(conversationID, text string) error {
	return c.send(protocol.SendMessageMsg{
		Type:           protocol.TypeSendMessage,
		ConversationID: conversationID,
		Text:           text,
	})
}

// Typing signals the start of typing in a conversation.
func (c *Conn) Typing(conversationID string) error {
	return c.send(protocol.TypingMsg{
		Type:           protocol.TypeTyping,
		ConversationID: conversationID,
	})
}

// StopTyping signals the end of typing in a conversation.
func (c *Conn) StopTyping(conversationID string) error {
	return c.send(protocol.StopTypingMsg{
		Type:           protocol.TypeStopTyping,
		ConversationID: conversationID,
	})
}

// Ping sends an application-level keepalive.
func (c *Conn) Ping() error {
	return c.send(protocol.PingMsg{Type: protocol.TypePing})
}

// Close tears the connection down. Safe to call multiple times.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *Conn) send(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("client: marshal: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := wsutil.WriteClientMessage(c.conn, ws.OpText, data); err != nil {
		return fmt.Errorf("client: write: %w", err)
	}
	return nil
}

func (c *Conn) readLoop() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			if c.handlers.OnDisconnect != nil {
				c.handlers.OnDisconnect(err)
			}
			c.Close()
			return
		}
		c.dispatch(data)
	}
}

func (c *Conn) dispatch(data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}

	switch env.Type {
	case protocol.TypeConnected:
		var m protocol.ConnectedMsg
		if json.Unmarshal(data, &m) == nil {
			c.mu.Lock()
			c.userID = m.UserID
			c.connID = m.ConnID
			c.mu.Unlock()
		}
	case protocol.TypeNewMessage:
		var m protocol.NewMessageMsg
		if json.Unmarshal(data, &m) == nil && c.handlers.OnMessage != nil {
			c.handlers.OnMessage(m)
		}
	case protocol.TypeMessageNotification:
		var m protocol.MessageNotificationMsg
		if json.Unmarshal(data, &m) == nil && c.handlers.OnNotification != nil {
			c.handlers.OnNotification(m)
		}
	case protocol.TypeUserTyping:
		var m protocol.UserTypingMsg
		if json.Unmarshal(data, &m) == nil && c.handlers.OnTyping != nil {
			c.handlers.OnTyping(m)
		}
	case protocol.TypeUserStoppedTyping:
		var m protocol.UserStoppedTypingMsg
		if json.Unmarshal(data, &m) == nil && c.handlers.OnStopTyping != nil {
			c.handlers.OnStopTyping(m)
		}
	case protocol.TypeError:
		var m protocol.ErrorMsg
		if json.Unmarshal(data, &m) == nil && c.handlers.OnError != nil {
			c.handlers.OnError(m)
		}
	}
}
