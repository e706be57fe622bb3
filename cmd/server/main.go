package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/dextra-labs/dextra/internal/api"
	"github.com/dextra-labs/dextra/internal/config"
	"github.com/dextra-labs/dextra/internal/database"
	"github.com/dextra-labs/dextra/internal/events"
	"github.com/dextra-labs/dextra/internal/executor"
	"github.com/dextra-labs/dextra/internal/middleware"
	"github.com/dextra-labs/dextra/internal/protection"
	"github.com/dextra-labs/dextra/internal/registry"
	"github.com/dextra-labs/dextra/internal/risk"
	"github.com/dextra-labs/dextra/internal/router"
	"github.com/dextra-labs/dextra/internal/telemetry"
	"github.com/dextra-labs/dextra/internal/venues"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env if present; real deployments set variables directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	// Initialize telemetry first
	tel, err := telemetry.Init(telemetry.Config{
		Enabled:     cfg.Environment != "test",
		Environment: cfg.Environment,
		Writer:      os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			log.WithError(err).Error("Failed to shutdown telemetry")
		}
	}()

	// Postgres and Redis are optional: the engine is fully functional
	// in-memory, persistence and the event stream attach when available.
	var store *database.Store
	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		log.WithError(err).Warn("Running without PostgreSQL persistence")
		db = nil
	} else {
		defer db.Close()
		store = database.NewStore(db.Pool)
	}

	var emitter events.Emitter = events.NewMemoryEmitter()
	redis, err := database.NewRedisConnection(cfg.Redis)
	if err != nil {
		log.WithError(err).Warn("Running without Redis event stream")
		redis = nil
	} else {
		defer redis.Close()
		emitter = events.NewRedisEmitter(redis.Client, cfg.Redis.Stream, log)
	}

	// Venue catalog, seeded with the builtin venues
	reg := registry.New(log)
	for _, info := range venues.DefaultVenueInfos() {
		if err := reg.Register(info); err != nil {
			return fmt.Errorf("failed to seed venue %s: %w", info.ID, err)
		}
	}

	adapter := venues.NewSimulatedAdapter(reg)
	opt := router.New(adapter, log)

	exec := executor.NewCoordinator(adapter, opt, reg, emitter, cfg.Router.Authority, executor.RouterConfig{
		MaxHops:            cfg.Router.MaxHops,
		DefaultSlippageBps: cfg.Router.DefaultSlippageBps,
		RoutingFeeBps:      cfg.Router.RoutingFeeBps,
		IsActive:           cfg.Router.Active,
	}, log)

	provider := executor.NewSimulatedCapitalProvider(cfg.Flash.PoolLiquidity)
	flash := executor.NewFlashCoordinator(exec, provider, emitter, cfg.Router.Authority, executor.FlashConfig{
		FeeRateBps:     cfg.Flash.FeeRateBps,
		MaxSlippageBps: cfg.Flash.MaxSlippageBps,
		Paused:         cfg.Flash.Paused,
	}, log)

	baseDelay, err := cfg.Protection.BaseDelayDuration()
	if err != nil {
		return fmt.Errorf("invalid protection base delay: %w", err)
	}
	scheduler := protection.NewScheduler(exec, risk.NewEngine(), emitter, cfg.Router.Authority, protection.Config{
		BaseDelay:         baseDelay,
		MaxSlippageBps:    cfg.Protection.MaxSlippageBps,
		MaxPriceImpactBps: cfg.Protection.MaxPriceImpactBps,
		Active:            cfg.Protection.Active,
	}, log)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Logger())
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("dextra"))

	api.SetupRoutes(engine, api.Dependencies{
		DB:        db,
		Redis:     redis,
		Store:     store,
		Registry:  reg,
		Executor:  exec,
		Flash:     flash,
		Scheduler: scheduler,
		Auth:      middleware.NewAuthMiddleware(cfg.Security.JWTSecret),
		Admin:     middleware.NewAdminMiddleware(cfg.Security.AdminAPIKeyHash),
		Authority: cfg.Router.Authority,
	})

	// Create HTTP server with security timeouts
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           engine,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"service": "dextra",
			"version": "1.0.0",
			"port":    cfg.Server.Port,
		}).Info("Application startup")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}
	log.Info("Shutdown signal received")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server exited gracefully")
	return nil
}
