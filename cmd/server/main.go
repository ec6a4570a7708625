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

	"github.com/jason-s-yu/tycoon/internal/auth"
	"github.com/jason-s-yu/tycoon/internal/board"
	"github.com/jason-s-yu/tycoon/internal/cache"
	"github.com/jason-s-yu/tycoon/internal/config"
	"github.com/jason-s-yu/tycoon/internal/database"
	"github.com/jason-s-yu/tycoon/internal/game"
	"github.com/jason-s-yu/tycoon/internal/handlers"
	"github.com/jason-s-yu/tycoon/internal/lobby"
	"github.com/jason-s-yu/tycoon/internal/registry"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	logger.SetLevel(cfg.LogLevel)

	if err := auth.Init(cfg.TokenExpire); err != nil {
		logger.WithError(err).Fatal("Failed to initialize auth")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	reg := registry.New()
	roomCfg := game.RoomConfig{
		Rules:            game.DefaultHouseRules(),
		Board:            board.Classic(),
		Sender:           reg,
		BroadcastTimeout: cfg.BroadcastTimeout,
		QueueSize:        cfg.RoomQueueSize,
		BroadcastBacklog: cfg.BroadcastBacklog,
		Logger:           logger,
		OnEvict:          handlers.EvictFunc(reg),
	}

	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer rdb.Close()
		publisher := cache.NewPublisher(rdb, cfg.QueueName, 0, logger)
		roomCfg.ActionLog = publisher
		g.Go(func() error { return publisher.Run(ctx) })
		logger.WithField("queue", cfg.QueueName).Info("Publishing room actions to Redis")
	}

	dirCfg := lobby.Config{
		Grace:             cfg.RoomGrace,
		SweepInterval:     cfg.SweepInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
		DefaultCapacity:   cfg.DefaultCapacity,
		MaxCapacity:       cfg.MaxCapacity,
		Room:              roomCfg,
		Logger:            logger,
	}
	if cfg.DatabaseURL != "" {
		store, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to database")
		}
		defer store.Close()
		dirCfg.Store = store
	}
	rooms := lobby.NewDirectory(dirCfg)
	g.Go(func() error { return rooms.Run(ctx) })

	srv := handlers.NewServer(handlers.Config{
		Registry:    reg,
		Rooms:       rooms,
		Logger:      logger,
		ActionRate:  rate.Limit(cfg.ActionRate),
		ActionBurst: cfg.ActionBurst,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Infof("Running on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Fatal("server exited")
	}
	logger.Info("Server shutdown complete")
}
