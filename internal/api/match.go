package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/khuboolhai/chat-service/internal/match"
	"github.com/khuboolhai/chat-service/internal/store"
)

// matchScore computes the caller's compatibility with one profile. The
// score is computed fresh on every request; nothing is cached or stored.
// A gated or incomparable pair yields a null matchScore, never a number.
func (s *Server) matchScore(c *gin.Context) {
	userID := currentUser(c)
	profileID := c.Param("profileId")

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	mine, cand, ok := s.loadMatchPair(ctx, c, userID, profileID)
	if !ok {
		return
	}

	result := match.Compute(mine.MatchPreferences(), cand.Candidate())
	if result == nil {
		c.JSON(http.StatusOK, gin.H{"matchScore": nil})
		return
	}

	resp := gin.H{"matchScore": result.Score}
	if c.Query("breakdown") == "true" {
		resp["breakdown"] = result.Breakdown
	}
	c.JSON(http.StatusOK, resp)
}

type matchBatchRequest struct {
	ProfileIDs []string `json:"profileIds"`
}

// matchBatch scores the caller against many profiles at once, for list
// views. Unknown profile IDs are simply absent from the response; gated
// pairs are present with a null score.
func (s *Server) matchBatch(c *gin.Context) {
	userID := currentUser(c)

	var req matchBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.ProfileIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "profileIds is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	mine, err := s.store.GetProfileByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no profile for current user"})
			return
		}
		log.Printf("api: load own profile user=%s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}

	profiles, err := s.store.ListProfiles(ctx, req.ProfileIDs)
	if err != nil {
		log.Printf("api: load profiles: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profiles"})
		return
	}

	cands := make([]match.CandidateProfile, 0, len(profiles))
	for i := range profiles {
		cands = append(cands, profiles[i].Candidate())
	}

	c.JSON(http.StatusOK, gin.H{"scores": match.ComputeBatch(mine.MatchPreferences(), cands)})
}

// loadMatchPair fetches the caller's profile and the candidate profile,
// writing the error response itself when either is missing.
func (s *Server) loadMatchPair(ctx context.Context, c *gin.Context, userID, profileID string) (*store.Profile, *store.Profile, bool) {
	mine, err := s.store.GetProfileByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no profile for current user"})
			return nil, nil, false
		}
		log.Printf("api: load own profile user=%s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return nil, nil, false
	}

	cand, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return nil, nil, false
		}
		log.Printf("api: load profile id=%s: %v", profileID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return nil, nil, false
	}

	return mine, cand, true
}
