package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hostly/referral-engine/internal/attribution"
	"github.com/hostly/referral-engine/internal/ledger"
)

// AttributionHandler receives the attribution context from the signup collaborator
type AttributionHandler struct {
	resolver *attribution.Resolver
	ledger   *ledger.Ledger
}

// NewAttributionHandler creates a new attribution handler
func NewAttributionHandler(resolver *attribution.Resolver, ledg *ledger.Ledger) *AttributionHandler {
	return &AttributionHandler{
		resolver: resolver,
		ledger:   ledg,
	}
}

// ResolveRequest carries the new user and their optional attribution inputs
type ResolveRequest struct {
	UserID      uuid.UUID `json:"user_id" binding:"required"`
	URLCode     string    `json:"url_code"`
	CookieToken string    `json:"cookie_token"`
	ManualCode  string    `json:"manual_code"`
}

// Resolve runs attribution for a fresh signup and stamps the result into the
// ledger. Called exactly once per signup by the identity service.
func (h *AttributionHandler) Resolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	referrerID, method, err := h.resolver.Resolve(attribution.Context{
		URLCode:     req.URLCode,
		CookieToken: req.CookieToken,
		ManualCode:  req.ManualCode,
	}, req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if referrerID == nil {
		c.JSON(http.StatusOK, gin.H{"method": "organic"})
		return
	}

	record, err := h.ledger.UpsertOnSignup(*referrerID, req.UserID, method, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"method":      method,
		"referrer_id": referrerID,
		"referral_id": record.ID,
	})
}
