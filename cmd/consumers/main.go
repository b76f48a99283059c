package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"staybook/cmd/consumers/jobs"
	"staybook/internal/cache"
	"staybook/internal/config"
	"staybook/internal/consumers"
	"staybook/internal/database"
	"staybook/internal/external"
	"staybook/internal/logger"
	"staybook/internal/messaging"
	"staybook/internal/notifications"
	"staybook/internal/repository"
	"staybook/internal/service"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	slog.Info("Starting consumers service...")

	// Override NATS client ID for consumers
	cfg.NATS.ClientID = "staybook-consumers"

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		logger.Fatal("Failed to connect to NATS", "error", err)
	}

	// Delivery markers live in Redis, consumers cannot run without it
	redisClient, err := cache.NewClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", "error", err)
	}

	repos := repository.NewRepositories(db)
	mailer := notifications.NewMailer(cfg.Mail)

	handlers := consumers.NewHandlers(repos.Bookings, repos.Listings, repos.Users, mailer, redisClient)
	consumerService := consumers.NewConsumerService(natsClient, handlers)

	// Start consuming messages
	if err := consumerService.Start(); err != nil {
		logger.Fatal("Failed to start consumers", "error", err)
	}

	payments := service.NewPaymentService(repos.Payments, repos.Bookings, repos.Listings, repos.Users,
		external.NewChapaClient(cfg.Gateway), natsClient, service.PaymentOptions{
			Currency:         cfg.Payment.Currency,
			CallbackURL:      cfg.Payment.CallbackURL(),
			DefaultReturnURL: cfg.Payment.DefaultReturnURL,
		})

	reconcileJob := jobs.NewPaymentReconcileJob(payments,
		cfg.Reconciliation.Interval, cfg.Reconciliation.After, cfg.Reconciliation.Batch)
	if err := reconcileJob.Start(); err != nil {
		logger.Fatal("Failed to start payment reconciliation", "error", err)
	}

	slog.Info("Consumers service started successfully")

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down consumers service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reconcileJob.Stop(ctx)

	if err := consumerService.Shutdown(ctx); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}
	if err := natsClient.Close(); err != nil {
		slog.Error("Error closing NATS connection", "error", err)
	}
	if err := redisClient.Close(); err != nil {
		slog.Error("Error closing Redis connection", "error", err)
	}
	if err := db.Close(); err != nil {
		slog.Error("Error closing database connection", "error", err)
	}

	slog.Info("Consumers service stopped")
}
