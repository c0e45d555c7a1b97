// Package main runs the background worker that clears stale live rooms.
// Deploy it with WORKER_IN_PROCESS=false on the API servers.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-rooms/backend/config"
	"github.com/aura-rooms/backend/internal/broadcasts"
	"github.com/aura-rooms/backend/internal/provider"
	"github.com/aura-rooms/backend/internal/rooms"
	"github.com/aura-rooms/backend/internal/worker"
	"github.com/aura-rooms/backend/pkg/clock"
	"github.com/aura-rooms/backend/pkg/database"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	videoProvider, err := provider.NewHTTPClient(provider.HTTPConfig{
		BaseURL:     cfg.Provider.BaseURL,
		TokenID:     cfg.Provider.TokenID,
		TokenSecret: cfg.Provider.TokenSecret,
		Timeout:     cfg.Provider.Timeout(),
	}, logger)
	if err != nil {
		logger.Fatal("provider", zap.Error(err))
	}

	reconciler := worker.NewReconciler(
		rooms.NewRepository(pool),
		broadcasts.NewRepository(pool),
		videoProvider,
		cfg.Worker.ReconcileInterval(),
		clock.Real(),
		logger,
	)

	workerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		reconciler.Run(workerCtx)
	}()
	logger.Info("worker started", zap.Duration("interval", cfg.Worker.ReconcileInterval()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	<-done
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
