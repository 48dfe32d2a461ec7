package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"squadpay/internal/amqp"
	"squadpay/internal/config"
	applog "squadpay/internal/log"
	"squadpay/internal/messaging"
	"squadpay/internal/storage"
	"squadpay/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	applog.Setup(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Starting squadpay-worker")

	if cfg.AMQPURL == "" {
		slog.Error("Worker requires AMQP_URL to consume payment requests")
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		slog.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		slog.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	// The log messenger only records the outgoing request. Swap in a real
	// chat integration here once one is available.
	requestWorker := worker.NewRequestWorker(repo, messaging.NewLogMessenger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := amqpClient.ConsumePaymentRequests(ctx, requestWorker.HandleRequestMessage); err != nil {
			if err != context.Canceled {
				slog.Error("Message consumption failed", "error", err)
			}
			cancel()
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("Context cancelled")
	}

	slog.Info("Shutting down worker...")
	cancel()

	// Give in-flight deliveries a moment to ack before closing channels
	time.Sleep(2 * time.Second)
	slog.Info("Worker shutdown complete")
}
