package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tegro-money/custody/internal/config"
	"github.com/tegro-money/custody/internal/infra"
	"github.com/tegro-money/custody/internal/logging"
	"github.com/tegro-money/custody/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.AppName, cfg.AppEnv)
	ctx := context.Background()

	backends, closeBackends, err := openBackends(ctx, cfg, logger)
	if err != nil {
		logger.Error("open storage", "backend", cfg.Backend, "error", err)
		os.Exit(1)
	}
	defer closeBackends()

	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL, cfg.AppName)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}()

	srv, err := server.New(cfg, backends, cache, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}

func openBackends(ctx context.Context, cfg config.Config, logger *slog.Logger) (server.Backends, func(), error) {
	switch cfg.Backend {
	case config.BackendBolt:
		file, err := infra.OpenBoltFile(cfg.BoltPath)
		if err != nil {
			return server.Backends{}, nil, err
		}
		return server.Backends{Bolt: file}, func() {
			if err := file.Close(); err != nil {
				logger.Warn("close bolt file", "error", err)
			}
		}, nil
	default:
		db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.AppName)
		if err != nil {
			return server.Backends{}, nil, err
		}
		return server.Backends{DB: db}, db.Close, nil
	}
}
