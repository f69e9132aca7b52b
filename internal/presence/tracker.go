// Package presence tracks which users currently hold at least one live
// WebSocket connection. The in-memory Tracker is the authoritative view
// for a single process and is deliberately unpersisted: after a restart
// every user reads as offline until they reconnect. RedisPresence layers
// a shared Redis view on top for deployments with several instances.
package presence

import (
	"sync"

	"github.com/khuboolhai/chat-service/internal/metrics"
)

// Presence is the view connection handlers and the REST surface consume.
// Connect and Disconnect are lifecycle notifications; IsOnline answers
// whether the user holds any live connection.
type Presence interface {
	Connect(userID, connID string)
	Disconnect(userID, connID string)
	IsOnline(userID string) bool
}

// Tracker maps a user identity to the set of that user's active connection
// IDs. A user is online iff their entry exists and is non-empty; entries
// are pruned as soon as the last connection goes away, so the map never
// accumulates stale empty sets.
type Tracker struct {
	mu    sync.RWMutex
	users map[string]map[string]struct{} // userID -> set of connection IDs
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		users: make(map[string]map[string]struct{}),
	}
}

// Connect records a new live connection for the user. Multiple simultaneous
// connections per user (several tabs) are all tracked.
func (t *Tracker) Connect(userID, connID string) {
	t.mu.Lock()
	set, ok := t.users[userID]
	if !ok {
		set = make(map[string]struct{})
		t.users[userID] = set
	}
	set[connID] = struct{}{}
	online := len(t.users)
	t.mu.Unlock()

	metrics.OnlineUsers.Set(float64(online))
}

// Disconnect removes a connection for the user. When the user's last
// connection is removed the entry is deleted entirely.
func (t *Tracker) Disconnect(userID, connID string) {
	t.mu.Lock()
	if set, ok := t.users[userID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(t.users, userID)
		}
	}
	online := len(t.users)
	t.mu.Unlock()

	metrics.OnlineUsers.Set(float64(online))
}

// IsOnline reports whether the user has at least one live connection.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.RLock()
	_, ok := t.users[userID]
	t.mu.RUnlock()
	return ok
}

// OnlineCount returns the number of distinct users currently online.
func (t *Tracker) OnlineCount() int {
	t.mu.RLock()
	n := len(t.users)
	t.mu.RUnlock()
	return n
}

// OnlineUsers returns a snapshot of every user with at least one live
// connection.
func (t *Tracker) OnlineUsers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	users := make([]string, 0, len(t.users))
	for id := range t.users {
		users = append(users, id)
	}
	return users
}

// Connections returns a snapshot of the user's connection IDs, or nil if
// the user is offline.
func (t *Tracker) Connections(userID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	set, ok := t.users[userID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}
