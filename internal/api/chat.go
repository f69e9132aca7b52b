package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/khuboolhai/chat-service/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type conversationView struct {
	ID              string     `json:"_id"`
	OtherUser       *userView  `json:"otherUser"`
	LastMessage     string     `json:"lastMessage"`
	LastMessageAt   *time.Time `json:"lastMessageAt"`
	UnreadCount     int        `json:"unreadCount"`
	OtherUserOnline bool       `json:"otherUserOnline"`
	CreatedAt       time.Time  `json:"createdAt"`
}

type userView struct {
	UserID    string `json:"_id"`
	ProfileID string `json:"profileId"`
	FullName  string `json:"fullName"`
	PhotoURL  string `json:"photoUrl"`
}

// listConversations returns the caller's conversations newest-activity
// first, each enriched with the other participant's display profile,
// unread count, and live presence.
func (s *Server) listConversations(c *gin.Context) {
	userID := currentUser(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		log.Printf("api: list conversations user=%s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	views := make([]conversationView, 0, len(convs))
	for i := range convs {
		conv := &convs[i]
		other := conv.Other(userID)

		view := conversationView{
			ID:              conv.ID,
			LastMessage:     conv.LastMessage,
			LastMessageAt:   conv.LastMessageAt,
			OtherUserOnline: s.presence.IsOnline(other),
			CreatedAt:       conv.CreatedAt,
		}

		// A sparse or deleted profile must not hide the conversation.
		if profile, err := s.store.GetProfileByUser(ctx, other); err == nil {
			view.OtherUser = &userView{
				UserID:    profile.UserID,
				ProfileID: profile.ID,
				FullName:  profile.FullName,
				PhotoURL:  profile.PhotoURL,
			}
		} else if !errors.Is(err, store.ErrNotFound) {
			log.Printf("api: load profile user=%s: %v", other, err)
		}
		if view.OtherUser == nil {
			view.OtherUser = &userView{UserID: other}
		}

		if unread, err := s.store.UnreadCount(ctx, conv.ID, userID); err == nil {
			view.UnreadCount = unread
		} else {
			log.Printf("api: unread count conv=%s: %v", conv.ID, err)
		}

		views = append(views, view)
	}

	c.JSON(http.StatusOK, gin.H{"conversations": views})
}

type createConversationRequest struct {
	ProfileID string `json:"profileId"`
}

// createConversation resolves the target profile to its owning user and
// returns the pair's conversation, creating it on first contact.
func (s *Server) createConversation(c *gin.Context) {
	userID := currentUser(c)

	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ProfileID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "profileId is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	profile, err := s.store.GetProfile(ctx, req.ProfileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		log.Printf("api: load profile id=%s: %v", req.ProfileID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}
	if profile.UserID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start a conversation with yourself"})
		return
	}

	conv, err := s.store.GetOrCreateConversation(ctx, userID, profile.UserID)
	if err != nil {
		log.Printf("api: create conversation users=%s,%s: %v", userID, profile.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": gin.H{
		"_id":       conv.ID,
		"createdAt": conv.CreatedAt,
	}})
}

// listMessages pages backwards through a conversation's history. The page
// is returned in ascending creation order; nextCursor is the oldest
// message of the page and feeds the next request's before parameter.
// Fetching history marks the peer's messages read.
func (s *Server) listMessages(c *gin.Context) {
	userID := currentUser(c)
	convID := c.Param("id")

	limit := defaultPageSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		if n > maxPageSize {
			n = maxPageSize
		}
		limit = n
	}

	// Cursors are message IDs; reject malformed ones here so they never
	// reach the keyset subselect as a failed UUID cast.
	before := c.Query("before")
	if before != "" {
		if _, err := uuid.Parse(before); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	conv, err := s.store.GetConversation(ctx, convID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		log.Printf("api: load conversation id=%s: %v", convID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}
	if !conv.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}

	msgs, hasMore, err := s.store.ListMessages(ctx, convID, before, limit)
	if err != nil {
		log.Printf("api: list messages conv=%s: %v", convID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	// Read-marking is a side effect of fetching history; its failure must
	// not fail the read.
	if _, err := s.store.MarkRead(ctx, convID, userID); err != nil {
		log.Printf("api: mark read conv=%s user=%s: %v", convID, userID, err)
	}

	resp := gin.H{"messages": msgs, "hasMore": hasMore}
	if hasMore && len(msgs) > 0 {
		resp["nextCursor"] = msgs[0].ID
	}
	c.JSON(http.StatusOK, resp)
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

// sendMessage is the REST fallback for clients without a live WebSocket.
// Validation, persistence, and fan-out are identical to the realtime path.
func (s *Server) sendMessage(c *gin.Context) {
	userID := currentUser(c)
	convID := c.Param("id")

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	m, err := s.store.AppendMessage(ctx, convID, userID, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEmptyText):
			c.JSON(http.StatusBadRequest, gin.H{"error": "message text is required"})
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		case errors.Is(err, store.ErrNotParticipant):
			c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		default:
			log.Printf("api: send message conv=%s user=%s: %v", convID, userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
		}
		return
	}

	s.publisher.PublishMessage(ctx, userID, m)
	c.JSON(http.StatusCreated, gin.H{"message": m})
}
