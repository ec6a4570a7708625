// cmd/historian/main.go is an asynchronous historian service that pops room action records
// from a Redis queue and persists them to PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/tycoon/internal/cache"
	"github.com/jason-s-yu/tycoon/internal/config"
	"github.com/jason-s-yu/tycoon/internal/database"
	"github.com/jason-s-yu/tycoon/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL must be set")
	}
	redisAddr := cfg.RedisAddr
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	rdb, err := cache.Connect(ctx, redisAddr, cfg.RedisDB)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer rdb.Close()

	store, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer store.Close()

	svc := historian.New(rdb, store, historian.Config{
		QueueName:     cfg.QueueName,
		BatchSize:     cfg.HistorianBatchSize,
		FlushInterval: cfg.HistorianFlush,
		Inactivity:    cfg.HistorianIdle,
		Logger:        logger,
	})
	if err := svc.Run(ctx); err != nil {
		logger.WithError(err).Error("Historian exited with error")
	}
	logger.Info("Historian shutdown complete.")
}
