package handlers

import (
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/dextra-labs/dextra/internal/executor"
	"github.com/dextra-labs/dextra/internal/protection"
)

type AdminHandler struct {
	exec      *executor.Coordinator
	flash     *executor.FlashCoordinator
	scheduler *protection.Scheduler
	authority string
	startTime time.Time
}

func NewAdminHandler(exec *executor.Coordinator, flash *executor.FlashCoordinator, scheduler *protection.Scheduler, authority string) *AdminHandler {
	return &AdminHandler{
		exec:      exec,
		flash:     flash,
		scheduler: scheduler,
		authority: authority,
		startTime: time.Now(),
	}
}

type RouterConfigRequest struct {
	MaxHops            *uint8  `json:"max_hops"`
	DefaultSlippageBps *uint16 `json:"default_slippage_bps"`
	RoutingFeeBps      *uint16 `json:"routing_fee_bps"`
	IsActive           *bool   `json:"is_active"`
}

// UpdateRouterConfig changes the execution configuration. Admin only.
func (h *AdminHandler) UpdateRouterConfig(c *gin.Context) {
	var req RouterConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	err := h.exec.UpdateConfig(h.authority, req.MaxHops, req.DefaultSlippageBps, req.RoutingFeeBps, req.IsActive)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, executor.ErrUnauthorized) {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": h.exec.Config()})
}

type ProtectionConfigRequest struct {
	BaseDelay         *string `json:"base_delay"`
	MaxSlippageBps    *uint16 `json:"max_slippage_bps"`
	MaxPriceImpactBps *uint16 `json:"max_price_impact_bps"`
	Active            *bool   `json:"active"`
}

// UpdateProtectionConfig changes the protection-program configuration.
// Admin only.
func (h *AdminHandler) UpdateProtectionConfig(c *gin.Context) {
	var req ProtectionConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	var baseDelay *time.Duration
	if req.BaseDelay != nil {
		d, err := time.ParseDuration(*req.BaseDelay)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid base_delay duration"})
			return
		}
		baseDelay = &d
	}

	err := h.scheduler.UpdateConfig(h.authority, baseDelay, req.MaxSlippageBps, req.MaxPriceImpactBps, req.Active)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, protection.ErrUnauthorized) {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": h.scheduler.Config()})
}

// Stats aggregates the program counters across all subsystems.
func (h *AdminHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"router":     h.exec.Stats(),
		"flash":      h.flash.Stats(),
		"protection": h.scheduler.Stats(),
		"uptime":     time.Since(h.startTime).String(),
	})
}

// SystemStats reports process and host resource usage.
func (h *AdminHandler) SystemStats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := gin.H{
		"goroutines":    runtime.NumGoroutine(),
		"heap_alloc_mb": m.HeapAlloc / 1024 / 1024,
		"gc_cycles":     m.NumGC,
		"uptime":        time.Since(h.startTime).String(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		stats["memory_used_percent"] = vm.UsedPercent
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		stats["cpu_percent"] = percents[0]
	}

	c.JSON(http.StatusOK, stats)
}
