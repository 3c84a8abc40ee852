package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/forumhq/webhooks/internal/api"
	"github.com/forumhq/webhooks/internal/config"
	"github.com/forumhq/webhooks/internal/dispatch"
	"github.com/forumhq/webhooks/internal/reconcile"
	"github.com/forumhq/webhooks/internal/store"
	ws "github.com/forumhq/webhooks/internal/websocket"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize PostgreSQL
	ctx := context.Background()
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := pgStore.RunMigrations(ctx, "migrations"); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Redis backs the per-subscription delivery rate limiter; optional.
	var limiter *dispatch.RateLimiter
	if cfg.RedisURL != "" {
		redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		logger.Info("connected to Redis")

		limiter = dispatch.NewRateLimiter(redisStore.Client(), cfg.RatePerSecond, logger)
	}

	// Live delivery feed for dashboard clients
	hub := ws.NewHub(logger)
	go hub.Run()

	// Delivery pipeline
	deliverer := dispatch.NewDeliverer(pgStore, pgStore, limiter, hub, cfg.DeliveryTimeout, logger)
	dispatcher := dispatch.NewDispatcher(pgStore, deliverer, logger)

	// Reconciliation sweeps run until shutdown
	sweeperCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	sweeper := reconcile.NewSweeper(pgStore, cfg.SweepInterval, cfg.RetryWindow, cfg.RetentionWindow, logger)
	go sweeper.Start(sweeperCtx)

	// Setup router
	router := api.NewRouter(pgStore, dispatcher, pgStore, pgStore, hub)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Let in-flight deliveries finish before exiting.
	done := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		logger.Warn("abandoning in-flight deliveries")
	}

	logger.Info("server stopped")
}
