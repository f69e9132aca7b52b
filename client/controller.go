package client

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/khuboolhai/chat-service/internal/protocol"
)

// tempIDPrefix marks optimistic local inserts awaiting the server's
// broadcast confirmation.
const tempIDPrefix = "temp_"

// dedupeWindow bounds the timestamp distance within which a broadcast
// message from the current user is treated as the confirmation of an
// optimistic insert with the same text, and within which a conversation
// broadcast and a personal-channel notification are treated as the two
// deliveries of one message.
const dedupeWindow = 2 * time.Second

// notifyPreviewRunes mirrors the truncation the server applies to
// personal-channel notification text. The same message arrives both as a
// full broadcast and as a truncated notification; comparing previews pairs
// the two deliveries so they count as one unread.
const notifyPreviewRunes = 50

// ConversationSummary is one row of the conversation list.
type ConversationSummary struct {
	ID            string
	OtherUserID   string
	OtherUserName string
	LastMessage   string
	LastMessageAt time.Time
	UnreadCount   int
	OtherOnline   bool
}

// Controller maintains client-side chat state against the event stream:
// the conversation list, the currently open conversation's message page,
// and live typing indicators. It holds no transport; callers feed it
// events (typically from Conn's handlers) and page data (from the REST
// API), and render from its accessors. All methods are goroutine-safe.
type Controller struct {
	mu     sync.Mutex
	userID string

	summaries map[string]*ConversationSummary

	activeID   string
	messages   []protocol.NewMessageMsg // ascending creation time
	hasMore    bool
	nextCursor string

	typing  map[string]map[string]bool // conversation -> user -> typing
	counted map[string]unreadMark      // last counted unread per conversation
	tempSeq int
}

// unreadMark remembers the delivery that last incremented a conversation's
// unread counter, so the same message's second delivery path does not
// increment again.
type unreadMark struct {
	preview string
	at      time.Time
}

// NewController creates a controller for the given local user.
func NewController(userID string) *Controller {
	return &Controller{
		userID:    userID,
		summaries: make(map[string]*ConversationSummary),
		typing:    make(map[string]map[string]bool),
		counted:   make(map[string]unreadMark),
	}
}

// SetConversations replaces the conversation list, e.g. from the REST
// list endpoint.
func (ctl *Controller) SetConversations(summaries []ConversationSummary) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	ctl.summaries = make(map[string]*ConversationSummary, len(summaries))
	for i := range summaries {
		s := summaries[i]
		ctl.summaries[s.ID] = &s
	}
}

// Conversations returns the list sorted by latest activity first.
func (ctl *Controller) Conversations() []ConversationSummary {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	out := make([]ConversationSummary, 0, len(ctl.summaries))
	for _, s := range ctl.summaries {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out
}

// Open makes a conversation the active one and installs its latest page
// of history. Opening clears the unread counter: the caller is looking at
// the messages now.
func (ctl *Controller) Open(conversationID string, page []protocol.NewMessageMsg, hasMore bool, nextCursor string) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	ctl.activeID = conversationID
	ctl.messages = sortedByCreation(page)
	ctl.hasMore = hasMore
	ctl.nextCursor = nextCursor
	if s, ok := ctl.summaries[conversationID]; ok {
		s.UnreadCount = 0
	}
	delete(ctl.counted, conversationID)
}

// ActiveID returns the open conversation's ID, or an empty string.
func (ctl *Controller) ActiveID() string {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.activeID
}

// Messages returns a copy of the active conversation's messages in
// ascending creation order.
func (ctl *Controller) Messages() []protocol.NewMessageMsg {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return append([]protocol.NewMessageMsg(nil), ctl.messages...)
}

// HasMore reports whether older history remains before the current page,
// and the cursor to fetch it with.
func (ctl *Controller) HasMore() (bool, string) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.hasMore, ctl.nextCursor
}

// AppendOptimistic inserts a locally sent message immediately, before the
// server confirms it, and returns the temporary ID. The confirming
// broadcast later replaces the entry in place.
func (ctl *Controller) AppendOptimistic(conversationID, text string) string {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	ctl.tempSeq++
	m := protocol.NewMessageMsg{
		ID:             fmt.Sprintf("%s%d", tempIDPrefix, ctl.tempSeq),
		ConversationID: conversationID,
		SenderID:       ctl.userID,
		Text:           text,
		CreatedAt:      time.Now(),
	}
	if conversationID == ctl.activeID {
		ctl.messages = append(ctl.messages, m)
	}
	ctl.touchSummary(conversationID, text, m.CreatedAt)
	return m.ID
}

// HandleMessage folds a new_message broadcast into the state. For the
// active conversation the message lands in the message list; a broadcast
// of the user's own message replaces its pending optimistic entry rather
// than duplicating it. For any conversation the summary row is updated,
// counting unread only for messages from the other user in a non-active
// conversation.
func (ctl *Controller) HandleMessage(m protocol.NewMessageMsg) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()

	fromSelf := m.SenderID == ctl.userID
	if m.ConversationID == ctl.activeID {
		ctl.mergeIntoActive(m, fromSelf)
	}
	ctl.touchSummary(m.ConversationID, m.Text, m.CreatedAt)
	if !fromSelf && m.ConversationID != ctl.activeID {
		ctl.bumpUnread(m.ConversationID, m.Text, m.CreatedAt)
	}
}

// HandleNotification folds a personal-channel preview into the matching
// summary row. The active conversation's notifications are ignored; the
// full message arrives on the conversation channel. A message the client
// is also subscribed to on the conversation channel arrives through both
// paths; bumpUnread pairs the two so the counter moves once.
func (ctl *Controller) HandleNotification(n protocol.MessageNotificationMsg) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if n.ConversationID == ctl.activeID {
		return
	}
	now := time.Now()
	ctl.touchSummary(n.ConversationID, n.Text, now)
	ctl.bumpUnread(n.ConversationID, n.Text, now)
}

// PrependOlder installs an older history page fetched with the cursor
// from HasMore, keeping ascending creation order.
func (ctl *Controller) PrependOlder(page []protocol.NewMessageMsg, hasMore bool, nextCursor string) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	merged := append(sortedByCreation(page), ctl.messages...)
	ctl.messages = merged
	ctl.hasMore = hasMore
	ctl.nextCursor = nextCursor
}

// HandleTyping records that a user is typing in a conversation.
func (ctl *Controller) HandleTyping(ev protocol.UserTypingMsg) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	set, ok := ctl.typing[ev.ConversationID]
	if !ok {
		set = make(map[string]bool)
		ctl.typing[ev.ConversationID] = set
	}
	set[ev.UserID] = true
}

// HandleStopTyping clears a user's typing state in a conversation.
func (ctl *Controller) HandleStopTyping(ev protocol.UserStoppedTypingMsg) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if set, ok := ctl.typing[ev.ConversationID]; ok {
		delete(set, ev.UserID)
		if len(set) == 0 {
			delete(ctl.typing, ev.ConversationID)
		}
	}
}

// IsTyping reports whether a user is currently typing in a conversation.
func (ctl *Controller) IsTyping(conversationID, userID string) bool {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.typing[conversationID][userID]
}

// mergeIntoActive inserts m into the active message list. Called with the
// lock held.
func (ctl *Controller) mergeIntoActive(m protocol.NewMessageMsg, fromSelf bool) {
	for i := range ctl.messages {
		if ctl.messages[i].ID == m.ID {
			return // duplicate broadcast
		}
	}

	// A confirmed own message replaces the optimistic entry it confirms:
	// same text, still pending, timestamps close enough.
	if fromSelf {
		for i := range ctl.messages {
			pending := &ctl.messages[i]
			if !isTempID(pending.ID) || pending.Text != m.Text {
				continue
			}
			if absDuration(m.CreatedAt.Sub(pending.CreatedAt)) <= dedupeWindow {
				*pending = m
				ctl.resort()
				return
			}
		}
	}

	ctl.messages = append(ctl.messages, m)
	ctl.resort()
}

// touchSummary updates a conversation's list row, creating it if this is
// the first sign of the conversation. Called with the lock held.
func (ctl *Controller) touchSummary(conversationID, text string, at time.Time) {
	s, ok := ctl.summaries[conversationID]
	if !ok {
		s = &ConversationSummary{ID: conversationID}
		ctl.summaries[conversationID] = s
	}
	if at.After(s.LastMessageAt) {
		s.LastMessage = text
		s.LastMessageAt = at
	}
}

// bumpUnread increments a conversation's unread counter unless this
// delivery pairs with the one already counted: same preview, within
// dedupeWindow. The broadcast and the notification of one message each
// reach here once; whichever lands second consumes the mark instead of
// counting again. Called with the lock held.
func (ctl *Controller) bumpUnread(conversationID, text string, at time.Time) {
	preview := previewOf(text)
	if mark, ok := ctl.counted[conversationID]; ok &&
		mark.preview == preview && absDuration(at.Sub(mark.at)) <= dedupeWindow {
		delete(ctl.counted, conversationID)
		return
	}
	ctl.counted[conversationID] = unreadMark{preview: preview, at: at}
	if s, ok := ctl.summaries[conversationID]; ok {
		s.UnreadCount++
	}
}

func (ctl *Controller) resort() {
	sort.SliceStable(ctl.messages, func(i, j int) bool {
		return ctl.messages[i].CreatedAt.Before(ctl.messages[j].CreatedAt)
	})
}

func sortedByCreation(page []protocol.NewMessageMsg) []protocol.NewMessageMsg {
	out := append([]protocol.NewMessageMsg(nil), page...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// previewOf truncates text the way the server truncates notification
// previews, so the full broadcast text and the notification text of one
// message compare equal.
func previewOf(text string) string {
	runes := []rune(text)
	if len(runes) <= notifyPreviewRunes {
		return text
	}
	return string(runes[:notifyPreviewRunes])
}

func isTempID(id string) bool {
	return len(id) > len(tempIDPrefix) && id[:len(tempIDPrefix)] == tempIDPrefix
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
