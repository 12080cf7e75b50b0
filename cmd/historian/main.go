// cmd/historian/main.go is an asynchronous historian service that pops action records from
// the Redis queue and persists them to PostgreSQL, marking idle rooms abandoned.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/coup/internal/cache"
	"github.com/jason-s-yu/coup/internal/config"
	"github.com/jason-s-yu/coup/internal/database"
	"github.com/jason-s-yu/coup/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.ConnectDB(ctx, cfg.PostgresURL(), logger)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatalf("database: %v", err)
	}

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	svc := historian.NewService(
		cache.NewJournal(rdb, cfg.QueueName),
		database.NewRepository(pool),
		historian.Options{
			BatchSize:     cfg.BatchSize,
			FlushInterval: cfg.FlushInterval,
			InactiveAfter: cfg.InactiveAfter,
		},
		logger,
	)
	if err := svc.Run(ctx); err != nil {
		logger.WithError(err).Error("historian stopped with error")
		os.Exit(1)
	}
	logger.Info("Historian shutdown complete.")
}
