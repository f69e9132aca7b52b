package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation is a durable two-party messaging thread. Participants are
// stored as a canonically ordered pair (user_lo < user_hi) so that at most
// one conversation exists per pair regardless of who initiated contact.
type Conversation struct {
	ID            string
	UserLo        string
	UserHi        string
	LastMessage   string // truncated preview, best-effort under contention
	LastMessageAt *time.Time
	CreatedAt     time.Time
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID == c.UserLo || userID == c.UserHi
}

// Other returns the participant that is not userID, or "" if userID is not
// a participant.
func (c *Conversation) Other(userID string) string {
	switch userID {
	case c.UserLo:
		return c.UserHi
	case c.UserHi:
		return c.UserLo
	}
	return ""
}

// pairKey canonicalises two user IDs into the stored (lo, hi) order.
func pairKey(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

const conversationColumns = `id, user_lo, user_hi, last_message, last_message_at, created_at`

// GetOrCreateConversation returns the conversation between the two users,
// creating it lazily on first contact. Calling it with the participants in
// either order yields the same conversation; a duplicate is never created.
func (s *Store) GetOrCreateConversation(ctx context.Context, userA, userB string) (*Conversation, error) {
	lo, hi := pairKey(userA, userB)

	// ON CONFLICT DO UPDATE on a no-op column so RETURNING yields the
	// existing row instead of nothing.
	const query = `
		INSERT INTO conversations (id, user_lo, user_hi)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_lo, user_hi) DO UPDATE SET user_lo = EXCLUDED.user_lo
		RETURNING ` + conversationColumns

	row := s.db.QueryRowContext(ctx, query, uuid.New().String(), lo, hi)
	conv, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("store: get-or-create conversation: %w", err)
	}
	return conv, nil
}

// GetConversation fetches a conversation by ID. Returns ErrNotFound for an
// unknown ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	const query = `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns the user's conversations ordered by most
// recent activity first.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	const query = `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE user_lo = $1 OR user_hi = $1
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan conversation: %w", err)
		}
		convs = append(convs, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}
	return convs, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(r rowScanner) (*Conversation, error) {
	var conv Conversation
	var lastAt sql.NullTime
	if err := r.Scan(&conv.ID, &conv.UserLo, &conv.UserHi, &conv.LastMessage, &lastAt, &conv.CreatedAt); err != nil {
		return nil, err
	}
	if lastAt.Valid {
		t := lastAt.Time
		conv.LastMessageAt = &t
	}
	return &conv, nil
}
