// Package ws handles WebSocket connection management: upgrading HTTP
// connections, authenticating the handshake, maintaining the connection
// registry, and reading frames into the application's message callback.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/khuboolhai/chat-service/internal/auth"
	"github.com/khuboolhai/chat-service/internal/metrics"
	"github.com/khuboolhai/chat-service/internal/protocol"
	"github.com/khuboolhai/chat-service/internal/ratelimit"
)

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	MaxConnections int           // hard cap on total connections
	WriteTimeout   time.Duration // timeout for WebSocket write operations
	AuthTimeout    time.Duration // time allowed for resolving the handshake credential
}

// DefaultServerConfig returns sensible production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MaxConnections: 50000,
		WriteTimeout:   10 * time.Second,
		AuthTimeout:    3 * time.Second,
	}
}

// Server upgrades HTTP requests to WebSocket connections, authenticates
// each handshake exactly once via the injected resolver, and runs one read
// goroutine per connection. There is no authentication retry path: a
// missing or invalid credential terminates the connection immediately.
type Server struct {
	config   ServerConfig
	conns    *ConnectionManager
	resolver auth.Resolver
	limiter  ratelimit.Checker

	onConnect    func(conn *Connection)
	onMessage    func(conn *Connection, data []byte)
	onDisconnect func(conn *Connection)

	done chan struct{}
}

// NewServer creates a Server. The callbacks are invoked from per-connection
// read goroutines: onConnect after a successful handshake, onMessage for
// every complete text frame, onDisconnect exactly once when the connection
// is removed.
func NewServer(config ServerConfig, resolver auth.Resolver, limiter ratelimit.Checker) *Server {
	return &Server{
		config:   config,
		conns:    NewConnectionManager(),
		resolver: resolver,
		limiter:  limiter,
		done:     make(chan struct{}),
	}
}

// SetOnConnect registers the post-handshake callback.
func (s *Server) SetOnConnect(fn func(conn *Connection)) { s.onConnect = fn }

// SetOnMessage registers the inbound frame callback.
func (s *Server) SetOnMessage(fn func(conn *Connection, data []byte)) { s.onMessage = fn }

// SetOnDisconnect registers the connection-removed callback.
func (s *Server) SetOnDisconnect(fn func(conn *Connection)) { s.onDisconnect = fn }

// HandleUpgrade is the HTTP handler for the WebSocket endpoint. The bearer
// credential arrives as a "token" query parameter because browsers cannot
// set headers on WebSocket dials.
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	ip := remoteIP(r)
	if ok, _ := s.limiter.Allow(r.Context(), ip, ratelimit.RuleConnect); !ok {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.AuthTimeout)
	userID, err := s.resolver.Resolve(ctx, r.URL.Query().Get("token"))
	cancel()
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("ws: upgrade failed for user=%s: %v", userID, err)
		return
	}

	c := &Connection{
		ID:        uuid.New().String(),
		UserID:    userID,
		Conn:      conn,
		RemoteIP:  ip,
		CreatedAt: time.Now(),
	}
	c.TouchPing()
	s.conns.Add(c)
	metrics.ConnectionsTotal.Set(float64(s.conns.Count()))

	if data, err := protocol.NewServerMessage(protocol.TypeConnected, protocol.ConnectedMsg{
		UserID: userID,
		ConnID: c.ID,
	}); err == nil {
		if err := c.WriteMessage(data); err != nil {
			log.Printf("ws: failed to send connected frame conn=%s: %v", c.ID, err)
		}
	}

	if s.onConnect != nil {
		s.onConnect(c)
	}

	log.Printf("ws: new connection conn=%s user=%s (total=%d)", c.ID, userID, s.conns.Count())
	go s.readLoop(c)
}

// readLoop reads frames until the connection dies. Control frames keep the
// connection alive without reaching the application; close frames and read
// errors tear the connection down.
func (s *Server) readLoop(c *Connection) {
	defer s.RemoveConnection(c)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		header, reader, err := wsutil.NextReader(c.Conn, ws.StateServerSide)
		if err != nil {
			return
		}

		c.TouchPing()

		if header.OpCode.IsControl() {
			if header.OpCode == ws.OpClose {
				return
			}
			// Ping/pong: connection is alive, nothing else to do.
			continue
		}

		data := make([]byte, header.Length)
		if header.Length > 0 {
			if _, err := io.ReadFull(reader, data); err != nil {
				return
			}
		}
		if len(data) == 0 {
			continue
		}

		if s.onMessage != nil {
			s.onMessage(c, data)
		}
	}
}

// RemoveConnection removes a connection from the registry and closes it.
// Safe to call multiple times; the disconnect callback fires only for the
// call that actually removed the connection.
func (s *Server) RemoveConnection(c *Connection) {
	if !s.conns.Remove(c.ID) {
		return
	}
	metrics.ConnectionsTotal.Set(float64(s.conns.Count()))

	if s.onDisconnect != nil {
		s.onDisconnect(c)
	}
	log.Printf("ws: connection closed conn=%s user=%s (total=%d)", c.ID, c.UserID, s.conns.Count())
}

// SendTo writes a WebSocket text frame to the connection identified by
// connID. It is goroutine-safe thanks to the per-connection write mutex.
func (s *Server) SendTo(connID string, data []byte) error {
	c := s.conns.Get(connID)
	if c == nil {
		return fmt.Errorf("ws: connection %s not found", connID)
	}

	if s.config.WriteTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	err := c.WriteMessage(data)
	_ = c.Conn.SetWriteDeadline(time.Time{})
	return err
}

// HandleHealth responds with the server's health status as JSON.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
	}{
		Status:      "ok",
		Connections: s.conns.Count(),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// Connections returns the ConnectionManager for external access (e.g., by
// the heartbeat monitor).
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Shutdown signals the read loops to exit and closes all connections.
func (s *Server) Shutdown() {
	close(s.done)
	for _, c := range s.conns.All() {
		s.RemoveConnection(c)
	}
	log.Printf("ws: server stopped, all connections closed")
}

// remoteIP extracts the client IP, honoring the proxy header the edge
// load balancer sets.
func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
