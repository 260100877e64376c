package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/numgate/numgate/infra/initializer"
	"github.com/numgate/numgate/pkg/app"
	"github.com/numgate/numgate/pkg/config"
	"github.com/numgate/numgate/webapi"
)

const sweepBatchSize = 100

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("failed to load application configuration: %w", err)
	}

	deps, err := initializer.InitializeDependencies(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Dispatcher.Close()
	logger := deps.Logger

	a := app.New(deps, cfg)
	fiberApp := webapi.SetupApp(a)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepLoop(ctx, logger, "purchase_expiry", time.Minute, a.PurchaseService.ExpireSweep)
	go sweepLoop(ctx, logger, "deposit_expiry", time.Minute, a.DepositService.ExpireSweep)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if err := fiberApp.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("starting server",
		"env", cfg.Env,
		"address", addr,
		"scheme", cfg.Server.Scheme,
	)
	return fiberApp.Listen(addr)
}

// sweepLoop runs one expiry sweep per tick until ctx is cancelled. Sweep
// errors are logged and the loop keeps going; expiries are retried on the
// next tick anyway.
func sweepLoop(
	ctx context.Context,
	logger *slog.Logger,
	name string,
	interval time.Duration,
	sweep func(ctx context.Context, batchSize int) (int, error),
) {
	sweepLogger := logger.With("sweep", name)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := sweep(ctx, sweepBatchSize)
			if err != nil {
				sweepLogger.Error("sweep failed", "error", err)
				continue
			}
			if swept > 0 {
				sweepLogger.Info("sweep done", "expired", swept)
			}
		}
	}
}
