package presence

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// presencePrefix is the Redis key prefix for per-user connection sets.
	presencePrefix = "presence:"

	// presenceTTL bounds how long a crashed instance's connections linger
	// in the shared view. Live instances refresh it from the heartbeat.
	presenceTTL = 2 * time.Minute

	// redisTimeout caps each Redis round trip; presence updates happen on
	// the connection lifecycle path and must not hang it.
	redisTimeout = 3 * time.Second
)

// RedisPresence mirrors a local Tracker into Redis so that instances can
// see each other's users. The local tracker stays authoritative for this
// process; Redis failures degrade presence to local-only visibility
// instead of failing connections.
type RedisPresence struct {
	local  *Tracker
	client *redis.Client
	done   chan struct{}
}

// NewRedisPresence wraps the tracker with a shared Redis view and starts
// the TTL refresh loop.
func NewRedisPresence(client *redis.Client, local *Tracker) *RedisPresence {
	p := &RedisPresence{
		local:  local,
		client: client,
		done:   make(chan struct{}),
	}
	go p.refreshLoop()
	return p
}

// Connect records the connection locally and in the shared set.
func (p *RedisPresence) Connect(userID, connID string) {
	p.local.Connect(userID, connID)

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	key := presencePrefix + userID
	pipe := p.client.Pipeline()
	pipe.SAdd(ctx, key, connID)
	pipe.Expire(ctx, key, presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("presence: redis connect user=%s: %v", userID, err)
	}
}

// Disconnect removes the connection locally and from the shared set.
// Redis drops the set itself once the last member is removed; no explicit
// delete, which could race with another instance adding a fresh entry.
func (p *RedisPresence) Disconnect(userID, connID string) {
	p.local.Disconnect(userID, connID)

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := p.client.SRem(ctx, presencePrefix+userID, connID).Err(); err != nil {
		log.Printf("presence: redis disconnect user=%s: %v", userID, err)
	}
}

// IsOnline answers from the local tracker first and falls back to the
// shared view for users connected to another instance.
func (p *RedisPresence) IsOnline(userID string) bool {
	if p.local.IsOnline(userID) {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	n, err := p.client.Exists(ctx, presencePrefix+userID).Result()
	if err != nil {
		log.Printf("presence: redis lookup user=%s: %v", userID, err)
		return false
	}
	return n > 0
}

// Close stops the TTL refresh loop. Shared entries for this instance's
// users expire on their own.
func (p *RedisPresence) Close() {
	close(p.done)
}

// refreshLoop re-extends the TTL of every locally connected user's shared
// entry, so long-lived connections stay visible across instances.
func (p *RedisPresence) refreshLoop() {
	ticker := time.NewTicker(presenceTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.refresh()
		}
	}
}

func (p *RedisPresence) refresh() {
	users := p.local.OnlineUsers()
	if len(users) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	pipe := p.client.Pipeline()
	for _, userID := range users {
		pipe.Expire(ctx, presencePrefix+userID, presenceTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("presence: redis refresh: %v", err)
	}
}
