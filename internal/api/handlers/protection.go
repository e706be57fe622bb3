package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/dextra-labs/dextra/internal/database"
	"github.com/dextra-labs/dextra/internal/middleware"
	"github.com/dextra-labs/dextra/internal/models"
	"github.com/dextra-labs/dextra/internal/protection"
)

type ProtectionHandler struct {
	scheduler *protection.Scheduler
	store     *database.Store
	authority string
}

// NewProtectionHandler creates the protection handler. A nil store disables
// persistence.
func NewProtectionHandler(scheduler *protection.Scheduler, store *database.Store, authority string) *ProtectionHandler {
	return &ProtectionHandler{scheduler: scheduler, store: store, authority: authority}
}

func (h *ProtectionHandler) persistTransaction(c *gin.Context, tx *models.ProtectedTransaction) {
	if h.store == nil {
		return
	}
	if err := h.store.SaveProtectedTransaction(c.Request.Context(), tx); err != nil {
		logrus.WithError(err).Warn("Failed to persist protected transaction")
	}
}

func (h *ProtectionHandler) persistReport(c *gin.Context, report *models.AttackReport) {
	if h.store == nil {
		return
	}
	if err := h.store.SaveAttackReport(c.Request.Context(), report); err != nil {
		logrus.WithError(err).Warn("Failed to persist attack report")
	}
}

type CreateProtectedRequest struct {
	Params models.ArbitrageRequest `json:"params" binding:"required"`
	Level  models.ProtectionLevel  `json:"level" binding:"required"`
}

// Create registers a protected transaction for the authenticated wallet.
func (h *ProtectionHandler) Create(c *gin.Context) {
	owner := middleware.WalletFromContext(c)
	if owner == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req CreateProtectedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	tx, err := h.scheduler.Create(c.Request.Context(), owner, req.Params, req.Level)
	if err != nil {
		c.JSON(protectionStatus(err), gin.H{"error": err.Error()})
		return
	}
	h.persistTransaction(c, tx)
	c.JSON(http.StatusCreated, tx)
}

// Execute runs a pending protected transaction once eligible.
func (h *ProtectionHandler) Execute(c *gin.Context) {
	owner := middleware.WalletFromContext(c)
	tx, err := h.scheduler.Execute(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		// Blocked and deferred outcomes mutate the transaction; keep the
		// audit store in step with the new status and deadline.
		if errors.Is(err, protection.ErrSandwichDetected) || errors.Is(err, protection.ErrExecutionDeferred) {
			if snapshot, getErr := h.scheduler.Get(owner, c.Param("id")); getErr == nil {
				h.persistTransaction(c, snapshot)
			}
		}
		c.JSON(protectionStatus(err), gin.H{"error": err.Error()})
		return
	}
	h.persistTransaction(c, tx)
	c.JSON(http.StatusOK, tx)
}

// Cancel aborts a pending protected transaction.
func (h *ProtectionHandler) Cancel(c *gin.Context) {
	owner := middleware.WalletFromContext(c)
	tx, err := h.scheduler.Cancel(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		c.JSON(protectionStatus(err), gin.H{"error": err.Error()})
		return
	}
	h.persistTransaction(c, tx)
	c.JSON(http.StatusOK, tx)
}

// Get returns one of the wallet's protected transactions.
func (h *ProtectionHandler) Get(c *gin.Context) {
	owner := middleware.WalletFromContext(c)
	tx, err := h.scheduler.Get(owner, c.Param("id"))
	if err != nil {
		c.JSON(protectionStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tx)
}

// List returns all of the wallet's protected transactions.
func (h *ProtectionHandler) List(c *gin.Context) {
	owner := middleware.WalletFromContext(c)
	txs := h.scheduler.List(owner)
	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"count":        len(txs),
	})
}

// ReportAttack files an observed MEV attack.
func (h *ProtectionHandler) ReportAttack(c *gin.Context) {
	reporter := middleware.WalletFromContext(c)

	var details models.AttackDetails
	if err := c.ShouldBindJSON(&details); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	report, err := h.scheduler.ReportAttack(c.Request.Context(), reporter, details)
	if err != nil {
		c.JSON(protectionStatus(err), gin.H{"error": err.Error()})
		return
	}
	h.persistReport(c, report)
	c.JSON(http.StatusCreated, report)
}

// GetReport returns one attack report.
func (h *ProtectionHandler) GetReport(c *gin.Context) {
	report, err := h.scheduler.GetReport(c.Param("id"))
	if err != nil {
		c.JSON(protectionStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

type ReviewReportRequest struct {
	Verdict models.ReportStatus `json:"verdict" binding:"required"`
}

// ReviewReport records the operator verdict on a report. Admin only.
func (h *ProtectionHandler) ReviewReport(c *gin.Context) {
	var req ReviewReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.scheduler.ReviewReport(h.authority, c.Param("id"), req.Verdict); err != nil {
		c.JSON(protectionStatus(err), gin.H{"error": err.Error()})
		return
	}
	report, err := h.scheduler.GetReport(c.Param("id"))
	if err != nil {
		c.JSON(protectionStatus(err), gin.H{"error": err.Error()})
		return
	}
	h.persistReport(c, report)
	c.JSON(http.StatusOK, report)
}

func protectionStatus(err error) int {
	switch {
	case errors.Is(err, protection.ErrProtectionInactive):
		return http.StatusServiceUnavailable
	case errors.Is(err, protection.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, protection.ErrNotFound),
		errors.Is(err, protection.ErrReportNotFound):
		return http.StatusNotFound
	case errors.Is(err, protection.ErrInvalidAmount),
		errors.Is(err, protection.ErrInvalidLevel),
		errors.Is(err, protection.ErrSlippageTooHigh),
		errors.Is(err, protection.ErrInvalidReport):
		return http.StatusBadRequest
	case errors.Is(err, protection.ErrExecutionTooEarly),
		errors.Is(err, protection.ErrInvalidTransactionStatus),
		errors.Is(err, protection.ErrSandwichDetected),
		errors.Is(err, protection.ErrPriceImpactTooHigh),
		errors.Is(err, protection.ErrExecutionDeferred):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
