package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hostly/referral-engine/internal/fraud"
	"github.com/hostly/referral-engine/internal/models"
)

// FraudHandler exposes the admin review surface for fraud signals
type FraudHandler struct {
	detector *fraud.Detector
}

// NewFraudHandler creates a new fraud handler
func NewFraudHandler(detector *fraud.Detector) *FraudHandler {
	return &FraudHandler{detector: detector}
}

// ListSignals lists fraud signals, newest first, optionally filtered by status
func (h *FraudHandler) ListSignals(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	signals, err := h.detector.ListSignals(models.FraudSignalStatus(c.Query("status")), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

// ReviewSignalRequest carries a triage decision
type ReviewSignalRequest struct {
	Status models.FraudSignalStatus `json:"status" binding:"required"`
}

// ReviewSignal applies a human triage decision to a signal. Clawback on
// confirmed fraud is handled by the trust service, not here.
func (h *FraudHandler) ReviewSignal(c *gin.Context) {
	signalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signal id"})
		return
	}

	var req ReviewSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Status {
	case models.FraudSignalStatusInvestigating,
		models.FraudSignalStatusConfirmed,
		models.FraudSignalStatusFalsePositive:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signal status"})
		return
	}

	signal, err := h.detector.ReviewSignal(signalID, req.Status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, signal)
}
