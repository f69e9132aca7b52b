package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PreviewRunes is the length the conversation's denormalized last-message
// preview is truncated to.
const PreviewRunes = 100

// Message is one chat message. Immutable once written except for the read
// flag, which transitions false -> true when the recipient fetches the
// conversation. Creation time is the sole ordering key.
type Message struct {
	ID             string    `json:"_id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Text           string    `json:"text"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"createdAt"`
}

// AppendMessage validates, persists a message, and updates the owning
// conversation's last-message preview in a single transaction, so a crash
// cannot leave a message whose conversation preview was never written.
// The sender must be one of the conversation's two participants.
func (s *Store) AppendMessage(ctx context.Context, convID, senderID, text string) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	conv, err := s.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		return nil, ErrNotParticipant
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin append: %w", err)
	}
	defer tx.Rollback()

	msg := &Message{
		ID:             uuid.New().String(),
		ConversationID: convID,
		SenderID:       senderID,
		Text:           text,
	}

	const insert = `
		INSERT INTO messages (id, conversation_id, sender_id, text)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`
	if err := tx.QueryRowContext(ctx, insert, msg.ID, convID, senderID, text).Scan(&msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("store: insert message: %w", err)
	}

	const update = `
		UPDATE conversations
		SET last_message = $2, last_message_at = $3
		WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, convID, TruncateRunes(text, PreviewRunes), msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("store: update conversation preview: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit append: %w", err)
	}
	return msg, nil
}

// ListMessages returns up to limit messages of the conversation in
// creation order (oldest first within the page). When beforeID names an
// existing message, only strictly older messages are returned; this is the
// cursor for scroll-to-top pagination. An unknown cursor yields an empty
// page; callers validate the cursor's form before it reaches the UUID cast
// here. hasMore reports whether older messages remain beyond the page.
func (s *Store) ListMessages(ctx context.Context, convID, beforeID string, limit int) (msgs []Message, hasMore bool, err error) {
	if limit <= 0 {
		limit = 50
	}

	args := []interface{}{convID, limit + 1}
	cursor := ""
	if beforeID != "" {
		cursor = `AND (m.created_at, m.id) < (SELECT created_at, id FROM messages WHERE id = $3)`
		args = append(args, beforeID)
	}

	// Newest page first, over-fetched by one row to detect hasMore; the
	// page is reversed into ascending order before returning.
	query := fmt.Sprintf(`
		SELECT m.id, m.conversation_id, m.sender_id, m.text, m.read, m.created_at
		FROM messages m
		WHERE m.conversation_id = $1 %s
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2`, cursor)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var page []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Text, &m.Read, &m.CreatedAt); err != nil {
			return nil, false, fmt.Errorf("store: scan message: %w", err)
		}
		page = append(page, m)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("store: list messages: %w", err)
	}

	if len(page) > limit {
		page = page[:limit]
		hasMore = true
	}

	// Reverse into ascending creation order for display.
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, hasMore, nil
}

// MarkRead flags every message in the conversation not authored by
// readerID as read. Re-running it is a no-op, so concurrent fetches by the
// same user are safe. Returns the number of messages newly marked.
func (s *Store) MarkRead(ctx context.Context, convID, readerID string) (int64, error) {
	const query = `
		UPDATE messages
		SET read = TRUE
		WHERE conversation_id = $1 AND sender_id <> $2 AND NOT read`

	res, err := s.db.ExecContext(ctx, query, convID, readerID)
	if err != nil {
		return 0, fmt.Errorf("store: mark read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: mark read rows: %w", err)
	}
	return n, nil
}

// UnreadCount returns how many messages in the conversation were sent to
// userID and not yet read.
func (s *Store) UnreadCount(ctx context.Context, convID, userID string) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = $1 AND sender_id <> $2 AND NOT read`

	var n int
	if err := s.db.QueryRowContext(ctx, query, convID, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: unread count: %w", err)
	}
	return n, nil
}

// TruncateRunes shortens s to at most n runes without splitting a
// multi-byte character.
func TruncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
