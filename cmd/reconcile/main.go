package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ArowuTest/raffle-engine/internal/app"
	"github.com/ArowuTest/raffle-engine/internal/config"
	"github.com/ArowuTest/raffle-engine/internal/logging"
)

// reconcile runs a single reconciliation pass and exits non-zero when any
// raffle failed
func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}
	logging.Setup(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialise application", "error", err)
		return 1
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			slog.Error("Error disconnecting from MongoDB", "error", err)
		}
	}()

	report := a.Scheduler.RunOnce(ctx)
	slog.Info("Reconciliation complete", "visited", report.Visited, "ingested", report.Ingested,
		"completed", report.Completed, "settled", report.Settled, "failed", report.Failed,
		"duration", report.Duration.String())
	if report.Failed > 0 {
		return 2
	}
	return 0
}
