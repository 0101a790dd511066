package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ArowuTest/raffle-engine/internal/config"
	"github.com/ArowuTest/raffle-engine/internal/ledger"
	"github.com/ArowuTest/raffle-engine/internal/lottery"
	"github.com/ArowuTest/raffle-engine/internal/models"
	"github.com/ArowuTest/raffle-engine/internal/observability"
	"github.com/ArowuTest/raffle-engine/internal/repositories"
	"github.com/ArowuTest/raffle-engine/internal/utils"
	"github.com/ArowuTest/raffle-engine/pkg/chaingateway"
	"github.com/ArowuTest/raffle-engine/pkg/payment"
)

// DispersalServiceImpl implements DispersalService
type DispersalServiceImpl struct {
	repo        repositories.RaffleRepository
	gateway     chaingateway.Gateway
	executor    payment.Executor
	cfg         config.DispersalConfig
	treasuryKey string
	holder      string
	metrics     *observability.EngineMetrics
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	newSeed     func() (int64, error)
}

var _ DispersalService = (*DispersalServiceImpl)(nil)

// DispersalOption customises the dispersal service.
type DispersalOption func(*DispersalServiceImpl)

// WithClock sets the function used to derive timestamps.
func WithClock(clock func() time.Time) DispersalOption {
	return func(s *DispersalServiceImpl) { s.now = clock }
}

// WithSleeper replaces the confirmation wait.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) DispersalOption {
	return func(s *DispersalServiceImpl) { s.sleep = sleep }
}

// WithSeedSource replaces the draw seed generator.
func WithSeedSource(newSeed func() (int64, error)) DispersalOption {
	return func(s *DispersalServiceImpl) { s.newSeed = newSeed }
}

// WithLeaseHolder sets the name recorded on claimed dispersal leases.
func WithLeaseHolder(holder string) DispersalOption {
	return func(s *DispersalServiceImpl) { s.holder = holder }
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *observability.EngineMetrics) DispersalOption {
	return func(s *DispersalServiceImpl) { s.metrics = m }
}

// NewDispersalService creates a new DispersalServiceImpl. treasuryKey is the
// signing key reference used for prize payouts and reserve top-ups.
func NewDispersalService(
	repo repositories.RaffleRepository,
	gateway chaingateway.Gateway,
	executor payment.Executor,
	cfg config.DispersalConfig,
	treasuryKey string,
	opts ...DispersalOption,
) *DispersalServiceImpl {
	s := &DispersalServiceImpl{
		repo:        repo,
		gateway:     gateway,
		executor:    executor,
		cfg:         cfg,
		treasuryKey: treasuryKey,
		holder:      defaultHolder(),
		now:         time.Now,
		sleep:       sleepContext,
		newSeed:     lottery.NewSeed,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultHolder() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "engine"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Complete closes an expired raffle: it ingests deposits one last time, draws
// the winners from a fresh seed and marks the raffle completed. The seed is
// stored so the draw can be replayed.
func (s *DispersalServiceImpl) Complete(ctx context.Context, raffle *models.Raffle) error {
	now := s.now()
	if raffle.Status != models.RaffleStatusLive || !raffle.IsExpired(now) {
		return nil
	}

	if _, err := syncDeposits(ctx, s.repo, s.gateway, s.metrics, raffle, now); err != nil {
		return fmt.Errorf("final deposit ingestion: %w", err)
	}
	if err := ledger.Verify(raffle); err != nil {
		return err
	}

	seed, err := s.newSeed()
	if err != nil {
		return fmt.Errorf("failed to generate draw seed: %w", err)
	}

	working := raffle.Clone()
	working.DrawSeed = seed
	winners, err := lottery.SelectWinners(ledger.Weights(working), working.WinnersRequested, lottery.NewSeededSource(seed))
	switch {
	case errors.Is(err, lottery.ErrNoEntries):
		working.Winners = []string{}
		working.NoEntries = true
		working.PrizeDispersed = true
	case err != nil:
		return fmt.Errorf("raffle %s: winner selection: %w", raffle.RaffleID, err)
	default:
		working.Winners = winners
	}
	working.Status = models.RaffleStatusCompleted
	working.CompletedAt = now
	working.LastProcessedAt = now
	working.LastError = ""

	if err := s.repo.Update(ctx, working); err != nil {
		return fmt.Errorf("failed to persist draw: %w", err)
	}
	*raffle = *working

	if raffle.NoEntries {
		slog.Info("Raffle completed without entries", "raffleId", raffle.RaffleID)
	} else {
		masked := make([]string, len(raffle.Winners))
		for i, w := range raffle.Winners {
			masked[i] = utils.MaskAddress(w)
		}
		slog.Info("Raffle completed", "raffleId", raffle.RaffleID, "winners", masked,
			"totalEntries", raffle.TotalEntries, "drawSeed", seed)
	}
	return nil
}

// DispersePrizes sends each winner its share of the prize from the treasury
// while holding the raffle's dispersal lease. Winners that already have a
// payout are skipped, and every successful send is persisted before the next
// one starts.
func (s *DispersalServiceImpl) DispersePrizes(ctx context.Context, raffle *models.Raffle) error {
	if raffle.Status != models.RaffleStatusCompleted || raffle.PrizeDispersed {
		return nil
	}

	if len(raffle.Winners) == 0 {
		raffle.PrizeDispersed = true
		raffle.LastProcessedAt = s.now()
		if err := s.repo.Update(ctx, raffle); err != nil {
			return fmt.Errorf("failed to mark prize dispersed: %w", err)
		}
		return nil
	}

	return s.withLease(ctx, raffle, "prize", func() error {
		if raffle.PrizeDispersed {
			return nil
		}
		return s.payWinners(ctx, raffle)
	})
}

func (s *DispersalServiceImpl) payWinners(ctx context.Context, raffle *models.Raffle) error {
	share := utils.DivideEvenly(raffle.PrizeAmount, len(raffle.Winners))
	asset := raffle.PrizeAsset.Symbol()
	var failed int
	var lastErr error

	for _, winner := range raffle.Winners {
		if raffle.HasPayout(winner) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		txid, err := s.executor.Send(ctx, payment.Transfer{
			Destination: winner,
			Amount:      share,
			Asset:       raffle.PrizeAsset,
			KeyRef:      s.treasuryKey,
		})
		if err != nil {
			failed++
			lastErr = err
			s.metrics.Payout(asset, "failed")
			slog.Error("Prize payout failed", "raffleId", raffle.RaffleID,
				"winner", utils.MaskAddress(winner), "amount", share, "retryable", payment.IsRetryable(err), "error", err)
			continue
		}

		raffle.PrizePayouts = append(raffle.PrizePayouts, models.PrizePayout{
			WinnerAddress: winner,
			TxID:          txid,
			Amount:        share,
			Timestamp:     s.now(),
		})
		s.metrics.Payout(asset, "sent")
		slog.Info("Prize sent", "raffleId", raffle.RaffleID, "winner", utils.MaskAddress(winner),
			"amount", share, "asset", asset, "txid", txid)
		if err := s.repo.Update(ctx, raffle); err != nil {
			slog.Error("CRITICAL: prize sent but payout record not persisted", "raffleId", raffle.RaffleID,
				"winner", winner, "txid", txid, "error", err)
			return fmt.Errorf("failed to persist payout %s: %w", txid, err)
		}
	}

	raffle.LastProcessedAt = s.now()
	if failed == 0 {
		raffle.PrizeDispersed = true
		raffle.LastError = ""
	} else {
		raffle.LastError = fmt.Sprintf("%d prize payout(s) failed: %v", failed, lastErr)
	}
	if err := s.repo.Update(ctx, raffle); err != nil {
		return fmt.Errorf("failed to persist prize dispersal: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("raffle %s: %d of %d prize payouts failed: %w", raffle.RaffleID, failed, len(raffle.Winners), lastErr)
	}
	slog.Info("Prizes dispersed", "raffleId", raffle.RaffleID, "winners", len(raffle.Winners), "share", share)
	return nil
}

// stepPlan returns the transfer a settlement step should make, or nil when
// the step has nothing to send
type stepPlan func(ctx context.Context, raffle *models.Raffle) (*payment.Transfer, error)

type settlementStep struct {
	name models.SettlementStep
	plan stepPlan
}

// Settle runs the settlement sequence under the dispersal lease. Completed
// steps are recorded with their txid and skipped when a later run resumes.
func (s *DispersalServiceImpl) Settle(ctx context.Context, raffle *models.Raffle) error {
	if raffle.Status != models.RaffleStatusCompleted || raffle.GeneratedTokensDispersed {
		return nil
	}

	return s.withLease(ctx, raffle, "settlement", func() error {
		if raffle.GeneratedTokensDispersed {
			return nil
		}
		return s.settle(ctx, raffle)
	})
}

func (s *DispersalServiceImpl) settle(ctx context.Context, raffle *models.Raffle) error {
	if !raffle.Settlement.AmountFixed {
		balance, balErr := s.gateway.Balance(ctx, raffle.ReceivingAddress, raffle.DepositAsset)
		if balErr != nil {
			return fmt.Errorf("failed to read settlement balance: %w", balErr)
		}
		raffle.Settlement.Amount = balance
		raffle.Settlement.AmountFixed = true
		if err := s.repo.Update(ctx, raffle); err != nil {
			return fmt.Errorf("failed to persist settlement amount: %w", err)
		}
		slog.Info("Settlement amount fixed", "raffleId", raffle.RaffleID,
			"amount", balance, "asset", raffle.DepositAsset.Symbol())
	}

	for _, step := range s.steps(raffle) {
		if raffle.Settlement.Done(step.name) {
			continue
		}
		if err := s.runStep(ctx, raffle, step); err != nil {
			return err
		}
	}

	raffle.GeneratedTokensDispersed = true
	raffle.LastProcessedAt = s.now()
	raffle.LastError = ""
	if err := s.repo.Update(ctx, raffle); err != nil {
		return fmt.Errorf("failed to mark settlement complete: %w", err)
	}
	slog.Info("Settlement complete", "raffleId", raffle.RaffleID, "amount", raffle.Settlement.Amount,
		"steps", len(raffle.Settlement.CompletedSteps))
	return nil
}

// withLease claims the raffle's dispersal lease, runs fn and releases the
// lease if this holder still owns it. A lease that went stale while fn ran
// may have been reclaimed; it is then left to its new holder.
func (s *DispersalServiceImpl) withLease(ctx context.Context, raffle *models.Raffle, track string, fn func() error) (err error) {
	previous := raffle.SettlementLease
	acquired, err := s.repo.ClaimSettlementLease(ctx, raffle, s.holder, s.now(), s.cfg.LeaseMaxHold)
	if err != nil {
		return fmt.Errorf("failed to claim %s lease: %w", track, err)
	}
	if !acquired {
		return fmt.Errorf("raffle %s: %w", raffle.RaffleID, ErrLeaseHeld)
	}
	if previous.Active {
		slog.Warn("Reclaimed stale dispersal lease", "raffleId", raffle.RaffleID, "track", track,
			"previousHolder", previous.Holder, "acquiredAt", previous.AcquiredAt)
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		released, releaseErr := s.repo.ReleaseSettlementLease(releaseCtx, raffle, s.holder)
		switch {
		case releaseErr != nil:
			slog.Error("Failed to release dispersal lease", "raffleId", raffle.RaffleID, "track", track, "error", releaseErr)
			if err == nil {
				err = fmt.Errorf("failed to release %s lease: %w", track, releaseErr)
			}
		case !released:
			slog.Warn("Dispersal lease was reclaimed by another holder", "raffleId", raffle.RaffleID,
				"track", track, "holder", s.holder)
		}
	}()

	return fn()
}

func (s *DispersalServiceImpl) steps(raffle *models.Raffle) []settlementStep {
	if raffle.DepositAsset.IsNative() {
		return []settlementStep{
			{models.SettlementStepTopUp, s.planTopUp(s.cfg.NativeReserve)},
			{models.SettlementStepSweep, s.planSweep(s.cfg.NativeReserve)},
		}
	}
	return []settlementStep{
		{models.SettlementStepTopUp, s.planTopUp(s.cfg.TokenReserve)},
		{models.SettlementStepFee, s.planFee},
		{models.SettlementStepRemainder, s.planRemainder},
		{models.SettlementStepSweep, s.planSweep(s.cfg.TokenReserve)},
	}
}

func (s *DispersalServiceImpl) runStep(ctx context.Context, raffle *models.Raffle, step settlementStep) error {
	transfer, err := step.plan(ctx, raffle)
	if err != nil {
		s.metrics.SettlementStep(string(step.name), "failed")
		return fmt.Errorf("settlement %s: %w", step.name, err)
	}

	completed := models.CompletedStep{Step: step.name}
	if transfer != nil {
		txid, err := s.executor.Send(ctx, *transfer)
		if err != nil {
			s.metrics.SettlementStep(string(step.name), "failed")
			slog.Error("Settlement step failed", "raffleId", raffle.RaffleID, "step", step.name,
				"amount", transfer.Amount, "retryable", payment.IsRetryable(err), "error", err)
			return fmt.Errorf("settlement %s: %w", step.name, err)
		}
		completed.TxID = txid
		completed.Amount = transfer.Amount
	}
	completed.CompletedAt = s.now()

	raffle.Settlement.CompletedSteps = append(raffle.Settlement.CompletedSteps, completed)
	if err := s.repo.Update(ctx, raffle); err != nil {
		slog.Error("CRITICAL: settlement step sent but not persisted", "raffleId", raffle.RaffleID,
			"step", step.name, "txid", completed.TxID, "error", err)
		return fmt.Errorf("failed to persist settlement %s: %w", step.name, err)
	}
	s.metrics.SettlementStep(string(step.name), "completed")

	if transfer == nil {
		slog.Info("Settlement step had nothing to send", "raffleId", raffle.RaffleID, "step", step.name)
		return nil
	}
	slog.Info("Settlement step sent", "raffleId", raffle.RaffleID, "step", step.name,
		"destination", utils.MaskAddress(transfer.Destination), "amount", transfer.Amount,
		"asset", transfer.Asset.Symbol(), "txid", completed.TxID)
	return s.sleep(ctx, s.cfg.ConfirmationDelay)
}

// planTopUp funds the raffle address from the treasury up to the native
// reserve needed to pay network fees for the following steps. A native raffle
// holding no more than the reserve has nothing to sweep and is not topped up.
func (s *DispersalServiceImpl) planTopUp(reserve float64) stepPlan {
	return func(ctx context.Context, raffle *models.Raffle) (*payment.Transfer, error) {
		if raffle.Settlement.Amount <= 0 {
			return nil, nil
		}
		if raffle.DepositAsset.IsNative() && raffle.Settlement.Amount <= reserve {
			return nil, nil
		}
		balance, err := s.gateway.Balance(ctx, raffle.ReceivingAddress, models.NativeAsset)
		if err != nil {
			return nil, err
		}
		needed := utils.Shortfall(balance, reserve)
		if needed <= 0 {
			return nil, nil
		}
		return &payment.Transfer{
			Destination: raffle.ReceivingAddress,
			Amount:      needed,
			Asset:       models.NativeAsset,
			KeyRef:      s.treasuryKey,
		}, nil
	}
}

func (s *DispersalServiceImpl) planFee(_ context.Context, raffle *models.Raffle) (*payment.Transfer, error) {
	fee, _ := utils.SplitFee(raffle.Settlement.Amount)
	if fee <= 0 {
		return nil, nil
	}
	return &payment.Transfer{
		Destination: raffle.TreasuryAddress,
		Amount:      fee,
		Asset:       raffle.DepositAsset,
		KeyRef:      raffle.KeyRef,
	}, nil
}

func (s *DispersalServiceImpl) planRemainder(_ context.Context, raffle *models.Raffle) (*payment.Transfer, error) {
	_, remainder := utils.SplitFee(raffle.Settlement.Amount)
	if remainder <= 0 {
		return nil, nil
	}
	return &payment.Transfer{
		Destination: raffle.Creator,
		Amount:      remainder,
		Asset:       raffle.DepositAsset,
		KeyRef:      raffle.KeyRef,
	}, nil
}

// planSweep returns native funds above the reserve to the treasury
func (s *DispersalServiceImpl) planSweep(reserve float64) stepPlan {
	return func(ctx context.Context, raffle *models.Raffle) (*payment.Transfer, error) {
		balance, err := s.gateway.Balance(ctx, raffle.ReceivingAddress, models.NativeAsset)
		if err != nil {
			return nil, err
		}
		excess := utils.Excess(balance, reserve)
		if excess <= 0 {
			return nil, nil
		}
		return &payment.Transfer{
			Destination: raffle.TreasuryAddress,
			Amount:      excess,
			Asset:       models.NativeAsset,
			KeyRef:      raffle.KeyRef,
		}, nil
	}
}
