// Package api exposes the REST surface next to the realtime gateway:
// conversation listing and creation, message history with cursor
// pagination, a fallback send endpoint, and compatibility scoring. All
// chat and match routes require a resolved identity.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/khuboolhai/chat-service/internal/auth"
	"github.com/khuboolhai/chat-service/internal/presence"
	"github.com/khuboolhai/chat-service/internal/store"
)

const requestTimeout = 15 * time.Second

// contextUserKey is the gin context key the auth middleware stores the
// resolved user ID under.
const contextUserKey = "userID"

// Store is the slice of the persistence layer the REST handlers use.
// *store.Store satisfies it.
type Store interface {
	GetOrCreateConversation(ctx context.Context, userA, userB string) (*store.Conversation, error)
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]store.Conversation, error)
	AppendMessage(ctx context.Context, convID, senderID, text string) (*store.Message, error)
	ListMessages(ctx context.Context, convID, beforeID string, limit int) ([]store.Message, bool, error)
	MarkRead(ctx context.Context, convID, readerID string) (int64, error)
	UnreadCount(ctx context.Context, convID, userID string) (int, error)
	GetProfile(ctx context.Context, id string) (*store.Profile, error)
	GetProfileByUser(ctx context.Context, userID string) (*store.Profile, error)
	ListProfiles(ctx context.Context, ids []string) ([]store.Profile, error)
	BlockProfile(ctx context.Context, blockerID, profileID string) error
	UnblockProfile(ctx context.Context, blockerID, profileID string) error
	IsBlocked(ctx context.Context, blockerID, profileID string) (bool, error)
	ListBlockedProfiles(ctx context.Context, blockerID string) ([]store.Profile, error)
	CreateReport(ctx context.Context, reporterID, profileID, reason string) (*store.Report, error)
}

// Publisher fans a persisted message out to realtime subscribers. The
// gateway provides the production implementation so the REST send path
// behaves exactly like the WebSocket one.
type Publisher interface {
	PublishMessage(ctx context.Context, senderID string, m *store.Message)
}

// Server holds the REST handlers' dependencies.
type Server struct {
	store     Store
	presence  presence.Presence
	publisher Publisher
	resolver  auth.Resolver
}

// New creates the REST server.
func New(st Store, tracker presence.Presence, publisher Publisher, resolver auth.Resolver) *Server {
	return &Server{store: st, presence: tracker, publisher: publisher, resolver: resolver}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)

	chat := r.Group("/api/chat", s.requireAuth)
	chat.GET("/conversations", s.listConversations)
	chat.POST("/conversations", s.createConversation)
	chat.GET("/conversations/:id/messages", s.listMessages)
	chat.POST("/conversations/:id/messages", s.sendMessage)

	m := r.Group("/api/match", s.requireAuth)
	m.POST("/batch", s.matchBatch)
	m.GET("/:profileId", s.matchScore)

	b := r.Group("/api/block", s.requireAuth)
	b.GET("", s.listBlocked)
	b.GET("/check/:profileId", s.checkBlocked)
	b.POST("/:profileId", s.blockProfile)
	b.DELETE("/:profileId", s.unblockProfile)

	r.POST("/api/reports", s.requireAuth, s.createReport)

	return r
}

// requireAuth resolves the bearer token (or the token query parameter,
// matching the WebSocket handshake) into a user ID.
func (s *Server) requireAuth(c *gin.Context) {
	token := c.Query("token")
	if header := c.GetHeader("Authorization"); header != "" {
		token = strings.TrimPrefix(header, "Bearer ")
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	userID, err := s.resolver.Resolve(ctx, token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.Set(contextUserKey, userID)
	c.Next()
}

func currentUser(c *gin.Context) string {
	return c.GetString(contextUserKey)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
