/**
 * @description
 * This is the main entry point for the outbox dispatcher. It is a non-HTTP,
 * long-running process that drains the event outbox into RabbitMQ on a cron
 * schedule. The API server never talks to the broker itself.
 */
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/avsbank/banking-service/internal/app"
	"github.com/avsbank/banking-service/internal/config"
	"github.com/avsbank/banking-service/internal/store"
	"github.com/avsbank/banking-service/pkg/rabbitmq"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("level=info component=bootstrap msg=\"no .env file loaded\" err=%v", err)
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if err := cfg.Require("DATABASE_URL", "RABBITMQ_URL"); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"invalid configuration\" err=%v", err)
	}
	logger := config.NewLogger(cfg.LogLevel)

	pool, err := store.NewPool(context.Background(), cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer pool.Close()
	logger.Info("database connected")

	// The broker connection is opened lazily and reopened after publish failures.
	newPublisher := func() (rabbitmq.Publisher, error) {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			return nil, err
		}
		logger.Info("rabbitmq producer connected")
		return producer, nil
	}

	dispatcher := app.NewOutboxDispatcher(store.NewPostgresStore(pool), newPublisher, cfg.OutboxBatchSize, logger)
	scheduler := app.NewScheduler(dispatcher, cfg.OutboxDispatchSchedule, logger)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"scheduler start failed\" err=%v", err)
	}
	logger.Info("outbox dispatcher started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping scheduler")
	<-scheduler.Stop().Done()
	dispatcher.Close()
	logger.Info("outbox dispatcher stopped gracefully")
}
