// Package handlers implements the HTTP surface of the routing engine.
package handlers

import (
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dextra-labs/dextra/internal/database"
	"github.com/dextra-labs/dextra/internal/executor"
	"github.com/dextra-labs/dextra/internal/models"
	"github.com/dextra-labs/dextra/internal/router"
	"github.com/dextra-labs/dextra/internal/venues"
)

// tokenDecimals is the base-unit scale of all amounts on the wire.
const tokenDecimals = 6

// displayAmount renders a base-unit amount as a decimal token quantity.
func displayAmount(units uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -tokenDecimals).String()
}

type SwapHandler struct {
	exec  *executor.Coordinator
	store *database.Store
}

// NewSwapHandler creates the swap handler. A nil store disables persistence.
func NewSwapHandler(exec *executor.Coordinator, store *database.Store) *SwapHandler {
	return &SwapHandler{exec: exec, store: store}
}

type QuoteResponse struct {
	Route                models.Route `json:"route"`
	ExpectedOutput       uint64       `json:"expected_output"`
	ExpectedOutputTokens string       `json:"expected_output_tokens"`
	TotalFees            uint64       `json:"total_fees"`
	PriceImpactBps       uint16       `json:"price_impact_bps"`
	Timestamp            time.Time    `json:"timestamp"`
}

type ExecuteResponse struct {
	Record             *models.ExecutionRecord `json:"record"`
	ActualOutputTokens string                  `json:"actual_output_tokens"`
}

// Quote computes the best route for a swap intent without executing it.
func (h *SwapHandler) Quote(c *gin.Context) {
	var req models.ArbitrageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	route, err := h.exec.Quote(c.Request.Context(), req)
	if err != nil {
		c.JSON(quoteStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, QuoteResponse{
		Route:                route,
		ExpectedOutput:       route.ExpectedOutput,
		ExpectedOutputTokens: displayAmount(route.ExpectedOutput),
		TotalFees:            route.TotalFees,
		PriceImpactBps:       route.TotalPriceImpactBps,
		Timestamp:            time.Now(),
	})
}

// Execute optimizes and executes a swap intent atomically.
func (h *SwapHandler) Execute(c *gin.Context) {
	var req models.ArbitrageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	record, err := h.exec.ExecuteRequest(c.Request.Context(), req)
	if err != nil {
		c.JSON(executeStatus(err), gin.H{"error": err.Error()})
		return
	}

	if h.store != nil {
		if err := h.store.SaveExecutionRecord(c.Request.Context(), record); err != nil {
			logrus.WithError(err).Warn("Failed to persist execution record")
		}
	}

	c.JSON(http.StatusOK, ExecuteResponse{
		Record:             record,
		ActualOutputTokens: displayAmount(record.ActualOutput),
	})
}

func quoteStatus(err error) int {
	switch {
	case errors.Is(err, executor.ErrRouterInactive):
		return http.StatusServiceUnavailable
	case errors.Is(err, executor.ErrInvalidAmount),
		errors.Is(err, executor.ErrSlippageTooHigh),
		errors.Is(err, router.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, router.ErrNoRouteFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func executeStatus(err error) int {
	switch {
	case errors.Is(err, executor.ErrRouteNotProfitable),
		errors.Is(err, venues.ErrSlippageExceeded):
		return http.StatusConflict
	default:
		return quoteStatus(err)
	}
}
