package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dextra-labs/dextra/internal/models"
	"github.com/dextra-labs/dextra/internal/registry"
)

type VenueHandler struct {
	registry *registry.Registry
}

func NewVenueHandler(reg *registry.Registry) *VenueHandler {
	return &VenueHandler{registry: reg}
}

// List returns all active venues with their fee models and rolling stats.
func (h *VenueHandler) List(c *gin.Context) {
	venues := h.registry.List()
	c.JSON(http.StatusOK, gin.H{
		"venues": venues,
		"count":  len(venues),
	})
}

// Get returns one venue.
func (h *VenueHandler) Get(c *gin.Context) {
	venue, err := h.registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(venueStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, venue)
}

// Register adds a venue to the catalog. Admin only.
func (h *VenueHandler) Register(c *gin.Context) {
	var info models.VenueInfo
	if err := c.ShouldBindJSON(&info); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.registry.Register(info); err != nil {
		c.JSON(venueStatus(err), gin.H{"error": err.Error()})
		return
	}
	venue, err := h.registry.Get(info.ID)
	if err != nil {
		c.JSON(venueStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, venue)
}

type VenueMetricsRequest struct {
	Volume         uint64 `json:"volume"`
	SwapCount      uint64 `json:"swap_count"`
	SuccessRateBps uint16 `json:"success_rate_bps"`
	AvgSlippageBps uint16 `json:"avg_slippage_bps"`
}

// UpdateMetrics folds externally observed stats into a venue's rolling
// metrics. Admin only.
func (h *VenueHandler) UpdateMetrics(c *gin.Context) {
	var req VenueMetricsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	id := c.Param("id")
	if err := h.registry.UpdateMetrics(id, req.Volume, req.SwapCount, req.SuccessRateBps, req.AvgSlippageBps); err != nil {
		c.JSON(venueStatus(err), gin.H{"error": err.Error()})
		return
	}
	venue, err := h.registry.Get(id)
	if err != nil {
		c.JSON(venueStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, venue)
}

type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetActive flips a venue's active flag. Admin only.
func (h *VenueHandler) SetActive(c *gin.Context) {
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.registry.SetActive(c.Param("id"), *req.Active); err != nil {
		c.JSON(venueStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "active": *req.Active})
}

func venueStatus(err error) int {
	switch {
	case errors.Is(err, registry.ErrUnsupportedVenue):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrAlreadyRegistered):
		return http.StatusConflict
	case errors.Is(err, registry.ErrInvalidVenueName),
		errors.Is(err, registry.ErrFeeTooHigh),
		errors.Is(err, registry.ErrVenueNotActive):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
