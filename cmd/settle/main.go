// Command settle pays every due deposit once and exits. It is meant to be
// run by an external timer such as cron or a Kubernetes CronJob.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tegro-money/custody/internal/config"
	"github.com/tegro-money/custody/internal/infra"
	"github.com/tegro-money/custody/internal/logging"
	"github.com/tegro-money/custody/internal/server"
)

func main() {
	os.Exit(run())
}

// run returns 0 when every due deposit was paid, 2 when some failed and 1
// when the scan could not run.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	logger := logging.New(cfg.LogLevel, cfg.AppName+"-settle", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var backends server.Backends
	switch cfg.Backend {
	case config.BackendBolt:
		file, err := infra.OpenBoltFile(cfg.BoltPath)
		if err != nil {
			logger.Error("open bolt file", "error", err)
			return 1
		}
		defer file.Close()
		backends.Bolt = file
	default:
		db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.AppName+"-settle")
		if err != nil {
			logger.Error("connect postgres", "error", err)
			return 1
		}
		defer db.Close()
		backends.DB = db
	}

	svcs, err := server.NewServices(backends, cfg.MasterKey, logger)
	if err != nil {
		logger.Error("build services", "error", err)
		return 1
	}

	report, err := svcs.Deposits.SettleDue(ctx)
	if err != nil {
		logger.Error("settlement aborted", "paid", len(report.Paid), "error", err)
		return 1
	}
	if len(report.Failed) > 0 {
		return 2
	}
	return 0
}
