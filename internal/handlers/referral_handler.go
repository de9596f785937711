package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hostly/referral-engine/internal/attribution"
	"github.com/hostly/referral-engine/internal/ledger"
)

// ReferralHandler handles share-link creation for referrers
type ReferralHandler struct {
	ledger      *ledger.Ledger
	validator   *attribution.CookieValidator
	frontendURL string
}

// NewReferralHandler creates a new referral handler
func NewReferralHandler(ledg *ledger.Ledger, validator *attribution.CookieValidator, frontendURL string) *ReferralHandler {
	return &ReferralHandler{
		ledger:      ledg,
		validator:   validator,
		frontendURL: frontendURL,
	}
}

// CreateLink mints a new outstanding referral and its signed tracking token.
// The token goes into the share URL and later comes back as the tracking
// cookie at signup.
func (h *ReferralHandler) CreateLink(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	referrerID, ok := userID.(uuid.UUID)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user in context"})
		return
	}

	record, err := h.ledger.CreateReferred(referrerID, c.ClientIP())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	token := h.validator.Sign(record.ID)

	c.JSON(http.StatusCreated, gin.H{
		"referral_id": record.ID,
		"token":       token,
		"share_url":   fmt.Sprintf("%s/r/%s", h.frontendURL, token),
	})
}
