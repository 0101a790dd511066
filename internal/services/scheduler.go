package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ArowuTest/raffle-engine/internal/models"
	"github.com/ArowuTest/raffle-engine/internal/observability"
	"github.com/ArowuTest/raffle-engine/internal/repositories"
	"github.com/ArowuTest/raffle-engine/pkg/chaingateway"
)

// PassReport summarises one reconciliation pass
type PassReport struct {
	StartedAt    time.Time
	Duration     time.Duration
	Overlapped   bool
	Visited      int
	Ingested     int
	Completed    int
	PrizesPaid   int
	Settled      int
	LeaseSkipped int
	Failed       int
}

// Scheduler periodically reconciles every raffle that still needs work
type Scheduler struct {
	repo      repositories.RaffleRepository
	gateway   chaingateway.Gateway
	dispersal DispersalService
	metrics   *observability.EngineMetrics
	interval  time.Duration
	now       func() time.Time
	running   atomic.Bool
}

// NewScheduler creates a new Scheduler
func NewScheduler(
	repo repositories.RaffleRepository,
	gateway chaingateway.Gateway,
	dispersal DispersalService,
	metrics *observability.EngineMetrics,
	interval time.Duration,
) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		repo:      repo,
		gateway:   gateway,
		dispersal: dispersal,
		metrics:   metrics,
		interval:  interval,
		now:       time.Now,
	}
}

// Run executes a pass immediately and then on every tick until ctx is done.
// Passes run in their own goroutine so a slow pass never blocks the ticker;
// ticks that arrive while a pass is running are skipped.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("Reconciliation scheduler started", "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	start := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RunOnce(ctx)
		}()
	}
	start()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Reconciliation scheduler stopping")
			wg.Wait()
			return
		case <-ticker.C:
			start()
		}
	}
}

// RunOnce performs a single reconciliation pass. It returns immediately with
// Overlapped set when another pass is in progress.
func (s *Scheduler) RunOnce(ctx context.Context) (report PassReport) {
	report.StartedAt = s.now()
	if !s.running.CompareAndSwap(false, true) {
		report.Overlapped = true
		s.metrics.PassSkipped()
		slog.Warn("Previous reconciliation pass still running; skipping tick")
		return report
	}
	defer s.running.Store(false)
	defer func() {
		report.Duration = s.now().Sub(report.StartedAt)
		s.metrics.ObservePass(report.Duration)
	}()

	raffles, err := s.repo.FindNeedingAttention(ctx)
	if err != nil {
		s.metrics.RecordError("load")
		slog.Error("Failed to load raffles needing attention", "error", err)
		report.Failed++
		return report
	}

	for _, raffle := range raffles {
		if ctx.Err() != nil {
			break
		}
		report.Visited++
		s.process(ctx, raffle, &report)
	}

	slog.Info("Reconciliation pass finished", "visited", report.Visited, "ingested", report.Ingested,
		"completed", report.Completed, "prizesPaid", report.PrizesPaid, "settled", report.Settled,
		"leaseSkipped", report.LeaseSkipped, "failed", report.Failed)
	return report
}

func (s *Scheduler) process(ctx context.Context, raffle *models.Raffle, report *PassReport) {
	now := s.now()

	if raffle.Status == models.RaffleStatusLive && !raffle.IsExpired(now) {
		res, err := syncDeposits(ctx, s.repo, s.gateway, s.metrics, raffle, now)
		if err != nil {
			s.fail(ctx, raffle, "ingest", err, report)
			return
		}
		if res.Changed() {
			report.Ingested++
		}
		s.metrics.RaffleProcessed("ingested")
		return
	}

	if raffle.Status == models.RaffleStatusLive {
		if err := s.dispersal.Complete(ctx, raffle); err != nil {
			s.fail(ctx, raffle, "complete", err, report)
			return
		}
		report.Completed++
	}

	if raffle.Status != models.RaffleStatusCompleted {
		return
	}

	failed := false
	if !raffle.PrizeDispersed {
		err := s.dispersal.DispersePrizes(ctx, raffle)
		switch {
		case errors.Is(err, ErrLeaseHeld):
			report.LeaseSkipped++
			slog.Info("Dispersal lease held elsewhere; skipping", "raffleId", raffle.RaffleID,
				"holder", raffle.SettlementLease.Holder)
			return
		case err != nil:
			s.fail(ctx, raffle, "prize", err, report)
			failed = true
			if errors.Is(err, repositories.ErrVersionConflict) {
				return
			}
		default:
			report.PrizesPaid++
		}
	}

	if !raffle.GeneratedTokensDispersed {
		err := s.dispersal.Settle(ctx, raffle)
		switch {
		case errors.Is(err, ErrLeaseHeld):
			report.LeaseSkipped++
			slog.Info("Dispersal lease held elsewhere; skipping", "raffleId", raffle.RaffleID,
				"holder", raffle.SettlementLease.Holder)
		case err != nil:
			s.fail(ctx, raffle, "settle", err, report)
			failed = true
		default:
			report.Settled++
		}
	}

	if !failed {
		s.metrics.RaffleProcessed("dispersed")
	}
}

// fail logs the error, counts it and records it on the raffle. Version
// conflicts mean another writer advanced the raffle, so nothing is recorded.
func (s *Scheduler) fail(ctx context.Context, raffle *models.Raffle, stage string, err error, report *PassReport) {
	report.Failed++
	s.metrics.RecordError(stage)
	s.metrics.RaffleProcessed("failed")

	if errors.Is(err, repositories.ErrVersionConflict) {
		slog.Warn("Raffle changed concurrently; retrying next tick", "raffleId", raffle.RaffleID, "stage", stage)
		return
	}
	slog.Error("Raffle processing failed", "raffleId", raffle.RaffleID, "stage", stage, "error", err)

	latest, findErr := s.repo.FindByID(ctx, raffle.RaffleID)
	if findErr != nil {
		slog.Error("Failed to reload raffle to record error", "raffleId", raffle.RaffleID, "error", findErr)
		return
	}
	latest.LastError = stage + ": " + err.Error()
	latest.LastProcessedAt = s.now()
	if updateErr := s.repo.Update(ctx, latest); updateErr != nil {
		slog.Warn("Failed to record raffle error", "raffleId", raffle.RaffleID, "error", updateErr)
	}
}
