package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/dextra-labs/dextra/internal/database"
	"github.com/dextra-labs/dextra/internal/executor"
	"github.com/dextra-labs/dextra/internal/models"
)

type FlashHandler struct {
	flash     *executor.FlashCoordinator
	store     *database.Store
	authority string
}

// NewFlashHandler creates the flash handler. A nil store disables persistence.
func NewFlashHandler(flash *executor.FlashCoordinator, store *database.Store, authority string) *FlashHandler {
	return &FlashHandler{flash: flash, store: store, authority: authority}
}

type FlashExecuteRequest struct {
	Routes      []models.Route `json:"routes" binding:"required"`
	FlashAmount uint64         `json:"flash_amount" binding:"required"`
	MinProfit   uint64         `json:"min_profit"`
}

type FlashExecuteResponse struct {
	Ledger          *models.FlashLedger `json:"ledger"`
	NetProfitTokens string              `json:"net_profit_tokens"`
}

// Execute runs a flash-funded arbitrage chain.
func (h *FlashHandler) Execute(c *gin.Context) {
	var req FlashExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	ledger, err := h.flash.ExecuteFlash(c.Request.Context(), req.Routes, req.FlashAmount, req.MinProfit)
	if err != nil {
		c.JSON(flashStatus(err), gin.H{"error": err.Error()})
		return
	}

	if h.store != nil {
		if err := h.store.SaveFlashLedger(c.Request.Context(), ledger); err != nil {
			logrus.WithError(err).Warn("Failed to persist flash ledger")
		}
	}

	c.JSON(http.StatusOK, FlashExecuteResponse{
		Ledger:          ledger,
		NetProfitTokens: displayAmount(ledger.NetProfit),
	})
}

// Stats returns the flash-program counters and configuration.
func (h *FlashHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"stats":  h.flash.Stats(),
		"config": h.flash.Config(),
	})
}

// Pause stops new flash executions. Admin only.
func (h *FlashHandler) Pause(c *gin.Context) {
	if err := h.flash.Pause(h.authority); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

// Resume re-enables flash executions. Admin only.
func (h *FlashHandler) Resume(c *gin.Context) {
	if err := h.flash.Resume(h.authority); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

type FlashConfigRequest struct {
	FeeRateBps     *uint16 `json:"fee_rate_bps"`
	MaxSlippageBps *uint16 `json:"max_slippage_bps"`
}

// UpdateConfig changes the flash terms. Admin only.
func (h *FlashHandler) UpdateConfig(c *gin.Context) {
	var req FlashConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.flash.UpdateConfig(h.authority, req.FeeRateBps, req.MaxSlippageBps); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, executor.ErrUnauthorized) {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": h.flash.Config()})
}

// WithdrawFees drains accumulated program fees. Admin only.
func (h *FlashHandler) WithdrawFees(c *gin.Context) {
	amount, err := h.flash.WithdrawFees(h.authority)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, executor.ErrUnauthorized) {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"withdrawn":        amount,
		"withdrawn_tokens": displayAmount(amount),
	})
}

func flashStatus(err error) int {
	switch {
	case errors.Is(err, executor.ErrProgramPaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, executor.ErrEmptyRoutes),
		errors.Is(err, executor.ErrTooManyRoutes),
		errors.Is(err, executor.ErrInvalidAmount),
		errors.Is(err, executor.ErrAmountTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, executor.ErrInsufficientFunds),
		errors.Is(err, executor.ErrProfitTooLow),
		errors.Is(err, executor.ErrBorrowDenied):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
