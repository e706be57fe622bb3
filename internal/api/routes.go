// Package api wires the HTTP routes of the routing engine.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dextra-labs/dextra/internal/api/handlers"
	"github.com/dextra-labs/dextra/internal/database"
	"github.com/dextra-labs/dextra/internal/executor"
	"github.com/dextra-labs/dextra/internal/middleware"
	"github.com/dextra-labs/dextra/internal/protection"
	"github.com/dextra-labs/dextra/internal/registry"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Services  Services  `json:"services"`
}

type Services struct {
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

// Dependencies bundles everything the HTTP surface needs.
type Dependencies struct {
	DB        *database.PostgresDB
	Redis     *database.RedisClient
	Store     *database.Store
	Registry  *registry.Registry
	Executor  *executor.Coordinator
	Flash     *executor.FlashCoordinator
	Scheduler *protection.Scheduler
	Auth      *middleware.AuthMiddleware
	Admin     *middleware.AdminMiddleware
	Authority string
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	// Health check and metrics endpoints
	router.GET("/health", healthCheck(deps.DB, deps.Redis))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	swap := handlers.NewSwapHandler(deps.Executor, deps.Store)
	flash := handlers.NewFlashHandler(deps.Flash, deps.Store, deps.Authority)
	prot := handlers.NewProtectionHandler(deps.Scheduler, deps.Store, deps.Authority)
	venue := handlers.NewVenueHandler(deps.Registry)
	admin := handlers.NewAdminHandler(deps.Executor, deps.Flash, deps.Scheduler, deps.Authority)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Routing and execution
		swaps := v1.Group("/swaps")
		{
			swaps.POST("/quote", swap.Quote)
			swaps.POST("/execute", swap.Execute)
		}

		// Flash-funded arbitrage
		flashGroup := v1.Group("/flash")
		{
			flashGroup.POST("/execute", flash.Execute)
			flashGroup.GET("/stats", flash.Stats)
		}

		// Venue catalog
		venues := v1.Group("/venues")
		{
			venues.GET("", venue.List)
			venues.GET("/:id", venue.Get)
		}

		// MEV-protected transactions, scoped to the authenticated wallet
		protected := v1.Group("/protected")
		protected.Use(deps.Auth.RequireAuth())
		{
			protected.POST("", prot.Create)
			protected.GET("", prot.List)
			protected.GET("/:id", prot.Get)
			protected.POST("/:id/execute", prot.Execute)
			protected.POST("/:id/cancel", prot.Cancel)
		}

		// Attack reporting
		reports := v1.Group("/reports")
		reports.Use(deps.Auth.RequireAuth())
		{
			reports.POST("", prot.ReportAttack)
			reports.GET("/:id", prot.GetReport)
		}

		// Operator surface
		adminGroup := v1.Group("/admin")
		adminGroup.Use(deps.Admin.RequireAdminAuth())
		{
			adminGroup.POST("/venues", venue.Register)
			adminGroup.PUT("/venues/:id/active", venue.SetActive)
			adminGroup.PUT("/venues/:id/metrics", venue.UpdateMetrics)
			adminGroup.PUT("/router/config", admin.UpdateRouterConfig)
			adminGroup.PUT("/protection/config", admin.UpdateProtectionConfig)
			adminGroup.PUT("/flash/config", flash.UpdateConfig)
			adminGroup.POST("/flash/pause", flash.Pause)
			adminGroup.POST("/flash/resume", flash.Resume)
			adminGroup.POST("/flash/withdraw", flash.WithdrawFees)
			adminGroup.PUT("/reports/:id", prot.ReviewReport)
			adminGroup.GET("/stats", admin.Stats)
			adminGroup.GET("/system", admin.SystemStats)
		}
	}
}

func healthCheck(db *database.PostgresDB, redis *database.RedisClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := HealthResponse{
			Status:    "ok",
			Timestamp: time.Now(),
			Version:   "1.0.0",
			Services: Services{
				Database: "ok",
				Redis:    "ok",
			},
		}

		// Check database health
		if db == nil {
			response.Services.Database = "disabled"
		} else if err := db.HealthCheck(c.Request.Context()); err != nil {
			response.Services.Database = "error"
			response.Status = "degraded"
		}

		// Check Redis health
		if redis == nil {
			response.Services.Redis = "disabled"
		} else if err := redis.HealthCheck(c.Request.Context()); err != nil {
			response.Services.Redis = "error"
			response.Status = "degraded"
		}

		statusCode := http.StatusOK
		if response.Status == "degraded" {
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, response)
	}
}
