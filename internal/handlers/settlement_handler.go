package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hostly/referral-engine/internal/settlement"
)

// SettlementHandler receives payment-completion notifications
type SettlementHandler struct {
	engine *settlement.Engine
}

// NewSettlementHandler creates a new settlement handler
func NewSettlementHandler(engine *settlement.Engine) *SettlementHandler {
	return &SettlementHandler{engine: engine}
}

// Settle settles a payment event. The payment collaborator delivers
// at-least-once, so an unknown or already-settled event still returns 200.
func (h *SettlementHandler) Settle(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment event id"})
		return
	}

	if err := h.engine.Settle(eventID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "settled"})
}
