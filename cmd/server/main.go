// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/coup/internal/auth"
	"github.com/jason-s-yu/coup/internal/cache"
	"github.com/jason-s-yu/coup/internal/config"
	"github.com/jason-s-yu/coup/internal/database"
	"github.com/jason-s-yu/coup/internal/game"
	"github.com/jason-s-yu/coup/internal/handlers"
	"github.com/jason-s-yu/coup/internal/middleware"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logger := cfg.NewLogger()

	if cfg.JWTPrivateKeyPath != "" && cfg.JWTPublicKeyPath != "" {
		err = auth.InitFromPath(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.TokenExpiry)
	} else {
		logger.Warn("no JWT key files configured; tokens will not survive a restart")
		err = auth.Init(cfg.TokenExpiry)
	}
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}

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
	repo := database.NewRepository(pool)

	// The journal is optional: without Redis the game runs, only history is lost.
	var journal game.Journal
	if rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB); err != nil {
		logger.WithError(err).Warn("redis unavailable; action history disabled")
	} else {
		defer rdb.Close()
		journal = cache.NewJournal(rdb, cfg.QueueName)
	}

	hub := handlers.NewHub(logger)
	engine := game.NewEngine(game.NewGameStore(), repo, hub, journal, logger)
	engine.PersistTimeout = cfg.PersistTimeout
	defer engine.Close()

	gs := handlers.NewGameServer(engine, repo, hub, logger)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           middleware.LogMiddleware(logger)(gs.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s", server.Addr)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server exited: %v", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("graceful shutdown failed")
	}
}
