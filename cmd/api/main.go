package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rental-marketplace-core/config"
	httpHandler "rental-marketplace-core/internal/adapter/http/handler"
	pgStorage "rental-marketplace-core/internal/adapter/storage/postgres"
	redisStorage "rental-marketplace-core/internal/adapter/storage/redis"
	"rental-marketplace-core/internal/core/ports"
	"rental-marketplace-core/internal/service"
	"rental-marketplace-core/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting rental marketplace core API")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	paymentRepo := pgStorage.NewPaymentRepo(pool)
	listingRepo := pgStorage.NewListingRepo(pool)
	receiptRepo := pgStorage.NewReceiptRepo(pool)
	notifRepo := pgStorage.NewNotificationRepo(pool)
	prefRepo := pgStorage.NewPreferenceRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	receiptCache := redisStorage.NewReceiptCache(rdb)

	// Initialize core services
	sigSvc := service.NewHMACSignatureService()
	notificationSvc := service.NewNotificationService(notifRepo, transactor, log)
	reconcilerSvc := service.NewReconcilerService(
		paymentRepo,
		listingRepo,
		receiptRepo,
		receiptCache,
		notificationSvc,
		prefRepo,
		sigSvc,
		transactor,
		service.ReconcilerConfig{
			SigningSecret:   cfg.Webhook.SigningSecret,
			EntitlementDays: cfg.Webhook.EntitlementDays,
			ReceiptCacheTTL: cfg.Webhook.ReceiptCacheTTL,
		},
		log,
	)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Reconciler:     reconcilerSvc,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
