package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/khuboolhai/chat-service/internal/store"
)

// listBlocked returns the profiles the caller has blocked, most recently
// blocked first.
func (s *Server) listBlocked(c *gin.Context) {
	userID := currentUser(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	profiles, err := s.store.ListBlockedProfiles(ctx, userID)
	if err != nil {
		log.Printf("api: list blocked user=%s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load blocked profiles"})
		return
	}

	views := make([]userView, 0, len(profiles))
	for i := range profiles {
		p := &profiles[i]
		views = append(views, userView{
			UserID:    p.UserID,
			ProfileID: p.ID,
			FullName:  p.FullName,
			PhotoURL:  p.PhotoURL,
		})
	}
	c.JSON(http.StatusOK, gin.H{"profiles": views})
}

// blockProfile blocks a profile for the caller. Blocking the same profile
// twice answers 409.
func (s *Server) blockProfile(c *gin.Context) {
	userID := currentUser(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	profile, ok := s.resolveProfileParam(ctx, c)
	if !ok {
		return
	}
	if profile.UserID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot block yourself"})
		return
	}

	if err := s.store.BlockProfile(ctx, userID, profile.ID); err != nil {
		if errors.Is(err, store.ErrAlreadyBlocked) {
			c.JSON(http.StatusConflict, gin.H{"error": "profile already blocked"})
			return
		}
		log.Printf("api: block profile=%s user=%s: %v", profile.ID, userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to block profile"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "profile blocked"})
}

// unblockProfile removes a block; unblocking a profile that was never
// blocked succeeds.
func (s *Server) unblockProfile(c *gin.Context) {
	userID := currentUser(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	profile, ok := s.resolveProfileParam(ctx, c)
	if !ok {
		return
	}
	if err := s.store.UnblockProfile(ctx, userID, profile.ID); err != nil {
		log.Printf("api: unblock profile=%s user=%s: %v", profile.ID, userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to unblock profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "profile unblocked"})
}

// checkBlocked reports whether the caller has blocked a profile.
func (s *Server) checkBlocked(c *gin.Context) {
	userID := currentUser(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	profile, ok := s.resolveProfileParam(ctx, c)
	if !ok {
		return
	}
	blocked, err := s.store.IsBlocked(ctx, userID, profile.ID)
	if err != nil {
		log.Printf("api: check block profile=%s user=%s: %v", profile.ID, userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check block status"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocked": blocked})
}

type createReportRequest struct {
	ProfileID string `json:"profileId"`
	Reason    string `json:"reason"`
}

// createReport files a complaint against a profile for later review.
func (s *Server) createReport(c *gin.Context) {
	userID := currentUser(c)

	var req createReportRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ProfileID == "" || req.Reason == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "profileId and reason are required"})
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
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot report your own profile"})
		return
	}

	if _, err := s.store.CreateReport(ctx, userID, profile.ID, req.Reason); err != nil {
		if errors.Is(err, store.ErrEmptyReason) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "profileId and reason are required"})
			return
		}
		log.Printf("api: create report profile=%s user=%s: %v", profile.ID, userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit report"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "report submitted"})
}

// resolveProfileParam loads the profile named by the profileId path
// parameter, writing the 404 itself when it does not exist.
func (s *Server) resolveProfileParam(ctx context.Context, c *gin.Context) (*store.Profile, bool) {
	profile, err := s.store.GetProfile(ctx, c.Param("profileId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return nil, false
		}
		log.Printf("api: load profile id=%s: %v", c.Param("profileId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return nil, false
	}
	return profile, true
}
