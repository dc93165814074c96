package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rental-marketplace-core/config"
	"rental-marketplace-core/internal/adapter/mail"
	pgStorage "rental-marketplace-core/internal/adapter/storage/postgres"
	"rental-marketplace-core/internal/service"
	"rental-marketplace-core/pkg/logger"

	"github.com/rs/zerolog"
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
		Dur("poll_interval", cfg.Dispatcher.PollInterval).
		Int("batch_size", cfg.Dispatcher.BatchSize).
		Msg("Starting notification dispatcher")

	ctx, cancel := signalContext(log)
	defer cancel()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize repositories and transports
	notifRepo := pgStorage.NewNotificationRepo(pool)
	templateRepo := pgStorage.NewTemplateRepo(pool)
	prefRepo := pgStorage.NewPreferenceRepo(pool)
	userDir := pgStorage.NewUserDirectory(pool)
	inbox := pgStorage.NewInbox(pool)
	mailTransport := mail.NewSMTPTransport(cfg.SMTP, log)

	dispatcherSvc := service.NewDispatcherService(
		notifRepo,
		templateRepo,
		prefRepo,
		userDir,
		mailTransport,
		inbox,
		service.DispatcherConfig{
			BatchSize:   cfg.Dispatcher.BatchSize,
			SendTimeout: cfg.Dispatcher.SendTimeout,
		},
		log,
	)

	runDispatchLoop(ctx, dispatcherSvc, cfg.Dispatcher.PollInterval, log)

	log.Info().Msg("Dispatcher exited")
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received, stopping dispatcher...")
		cancel()
	}()

	return ctx, cancel
}

// runDispatchLoop polls for due notifications until the context is cancelled.
// An errored run is logged and retried on the next tick; due rows it did not
// reach are still queued and get picked up then.
func runDispatchLoop(ctx context.Context, dispatcher *service.DispatcherService, pollInterval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := dispatcher.DeliverDue(ctx); err != nil {
				log.Error().Err(err).Msg("dispatch run failed")
			}
		}
	}
}
