// Command compactvault runs the CompactVault HTTP server: a single
// process that serves at most one unlocked vault at a time, accepting
// chunked uploads into a process-wide staging directory and committing
// them through a bounded ingestion worker pool.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/smolfiddle/compactvault/internal/api"
	"github.com/smolfiddle/compactvault/internal/config"
	"github.com/smolfiddle/compactvault/internal/staging"
)

// maxPortAttempts bounds the port auto-increment retry loop from spec §6.
const maxPortAttempts = 20

func main() {
	cfg, err := config.LoadFromFile(os.Getenv("COMPACTVAULT_CONFIG"))
	if err != nil {
		panic(err)
	}
	config.LoadFromEnv(cfg)

	logger := buildLogger(cfg.Server.LogLevel)
	defer func() { _ = logger.Sync() }()

	// Staging directory is recreated empty at process start, per spec §6.
	if err := os.RemoveAll(cfg.Staging.Root); err != nil {
		logger.Fatal("failed to clear staging directory", zap.Error(err))
	}
	stage, err := staging.New(cfg.Staging.Root)
	if err != nil {
		logger.Fatal("failed to create staging directory", zap.Error(err))
	}

	server := api.NewServer(cfg, logger, stage)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	if err := server.ListenAndServeWithRetry(maxPortAttempts); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server stopped unexpectedly", zap.Error(err))
	}
}

func buildLogger(level string) *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	if l, err := zap.ParseAtomicLevel(level); err == nil {
		zapCfg.Level = l
	}
	logger, err := zapCfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}
