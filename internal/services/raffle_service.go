package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ArowuTest/raffle-engine/internal/config"
	"github.com/ArowuTest/raffle-engine/internal/ledger"
	"github.com/ArowuTest/raffle-engine/internal/models"
	"github.com/ArowuTest/raffle-engine/internal/observability"
	"github.com/ArowuTest/raffle-engine/internal/repositories"
	"github.com/ArowuTest/raffle-engine/internal/utils"
	"github.com/ArowuTest/raffle-engine/pkg/chaingateway"
	"github.com/google/uuid"
)

// RaffleServiceImpl implements RaffleService
type RaffleServiceImpl struct {
	repo      repositories.RaffleRepository
	gateway   chaingateway.Gateway
	validator chaingateway.TokenValidator
	cfg       config.DispersalConfig
	metrics   *observability.EngineMetrics
	now       func() time.Time
}

var _ RaffleService = (*RaffleServiceImpl)(nil)

// NewRaffleService creates a new RaffleServiceImpl. validator may be nil, in
// which case token tickers are not checked against the chain.
func NewRaffleService(
	repo repositories.RaffleRepository,
	gateway chaingateway.Gateway,
	validator chaingateway.TokenValidator,
	cfg config.DispersalConfig,
	metrics *observability.EngineMetrics,
) *RaffleServiceImpl {
	return &RaffleServiceImpl{
		repo:      repo,
		gateway:   gateway,
		validator: validator,
		cfg:       cfg,
		metrics:   metrics,
		now:       time.Now,
	}
}

// CreateRaffle validates the request and stores a new live raffle
func (s *RaffleServiceImpl) CreateRaffle(ctx context.Context, req *models.CreateRaffleRequest) (*models.Raffle, error) {
	now := s.now()

	depositAsset, err := normalizeAsset(req.DepositAsset)
	if err != nil {
		return nil, fmt.Errorf("deposit asset: %w", err)
	}
	prizeAsset, err := normalizeAsset(req.PrizeAsset)
	if err != nil {
		return nil, fmt.Errorf("prize asset: %w", err)
	}

	switch {
	case strings.TrimSpace(req.Creator) == "":
		return nil, fmt.Errorf("creator is required: %w", ErrInvalidRaffle)
	case strings.TrimSpace(req.ReceivingAddress) == "" || strings.TrimSpace(req.KeyRef) == "":
		return nil, fmt.Errorf("receiving address and key reference are required: %w", ErrInvalidRaffle)
	case req.CreditConversion <= 0:
		return nil, fmt.Errorf("credit conversion must be positive: %w", ErrInvalidRaffle)
	case req.PrizeAmount <= 0:
		return nil, fmt.Errorf("prize amount must be positive: %w", ErrInvalidRaffle)
	case req.WinnersRequested < 1:
		return nil, fmt.Errorf("at least one winner is required: %w", ErrInvalidRaffle)
	case !req.ExpiresAt.After(now):
		return nil, fmt.Errorf("expiry must be in the future: %w", ErrInvalidRaffle)
	case s.cfg.MaxRaffleDuration > 0 && req.ExpiresAt.After(now.Add(s.cfg.MaxRaffleDuration)):
		return nil, fmt.Errorf("expiry must be within %s: %w", s.cfg.MaxRaffleDuration, ErrInvalidRaffle)
	}

	for _, asset := range []models.Asset{depositAsset, prizeAsset} {
		if err := s.checkToken(ctx, asset); err != nil {
			return nil, err
		}
	}

	treasury := strings.TrimSpace(req.TreasuryAddress)
	if treasury == "" {
		treasury = s.cfg.TreasuryAddress
	}
	if treasury == "" {
		return nil, fmt.Errorf("no treasury address configured: %w", ErrInvalidRaffle)
	}

	raffle := &models.Raffle{
		RaffleID:         uuid.NewString(),
		Creator:          strings.TrimSpace(req.Creator),
		DepositAsset:     depositAsset,
		PrizeAsset:       prizeAsset,
		PrizeAmount:      req.PrizeAmount,
		PrizeDisplay:     req.PrizeDisplay,
		CreditConversion: req.CreditConversion,
		Status:           models.RaffleStatusLive,
		ExpiresAt:        req.ExpiresAt.UTC(),
		Deposits:         []models.DepositRecord{},
		Entries:          []models.EntryRecord{},
		WinnersRequested: req.WinnersRequested,
		Winners:          []string{},
		PrizePayouts:     []models.PrizePayout{},
		Settlement:       models.SettlementProgress{CompletedSteps: []models.CompletedStep{}},
		ReceivingAddress: strings.TrimSpace(req.ReceivingAddress),
		KeyRef:           req.KeyRef,
		TreasuryAddress:  treasury,
	}
	if err := s.repo.Create(ctx, raffle); err != nil {
		slog.Error("Failed to create raffle", "error", err, "creator", utils.MaskAddress(raffle.Creator))
		return nil, fmt.Errorf("failed to create raffle: %w", err)
	}

	slog.Info("Raffle created", "raffleId", raffle.RaffleID, "depositAsset", depositAsset.Symbol(),
		"prizeAsset", prizeAsset.Symbol(), "expiresAt", raffle.ExpiresAt, "winnersRequested", raffle.WinnersRequested)
	return raffle, nil
}

func normalizeAsset(a models.Asset) (models.Asset, error) {
	switch a.Kind {
	case models.AssetKindNative:
		return models.NativeAsset, nil
	case models.AssetKindToken:
		ticker := utils.NormalizeTicker(a.Ticker)
		if ticker == "" {
			return a, fmt.Errorf("token ticker is required: %w", ErrInvalidRaffle)
		}
		return models.Asset{Kind: models.AssetKindToken, Ticker: ticker}, nil
	default:
		return a, fmt.Errorf("unknown asset kind %q: %w", a.Kind, ErrInvalidRaffle)
	}
}

func (s *RaffleServiceImpl) checkToken(ctx context.Context, asset models.Asset) error {
	if asset.IsNative() || s.validator == nil {
		return nil
	}
	deployed, err := s.validator.TokenDeployed(ctx, asset.Ticker)
	if err != nil {
		return fmt.Errorf("failed to validate token %s: %w", asset.Ticker, err)
	}
	if !deployed {
		return fmt.Errorf("token %s is not fully deployed: %w", asset.Ticker, ErrInvalidRaffle)
	}
	return nil
}

// GetRaffle returns a raffle by its id
func (s *RaffleServiceImpl) GetRaffle(ctx context.Context, raffleID string) (*models.Raffle, error) {
	return s.repo.FindByID(ctx, raffleID)
}

// ListRaffles returns raffles matching the filter, most entries first
func (s *RaffleServiceImpl) ListRaffles(ctx context.Context, filter models.RaffleFilter) ([]*models.Raffle, error) {
	return s.repo.FindAll(ctx, filter)
}

// ProcessDeposits ingests a live raffle's deposits immediately
func (s *RaffleServiceImpl) ProcessDeposits(ctx context.Context, raffleID string) (*models.Raffle, ledger.Result, error) {
	raffle, err := s.repo.FindByID(ctx, raffleID)
	if err != nil {
		return nil, ledger.Result{}, err
	}
	if raffle.Status != models.RaffleStatusLive {
		return raffle, ledger.Result{}, fmt.Errorf("raffle %s is %s: %w", raffleID, raffle.Status, ErrInvalidRaffle)
	}
	res, err := syncDeposits(ctx, s.repo, s.gateway, s.metrics, raffle, s.now())
	if err != nil {
		return raffle, res, err
	}
	return raffle, res, nil
}

// ReleaseLease clears the dispersal lease of a raffle regardless of holder
func (s *RaffleServiceImpl) ReleaseLease(ctx context.Context, raffleID string) (*models.Raffle, error) {
	raffle, err := s.repo.FindByID(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	previous := raffle.SettlementLease
	if err := s.repo.ForceReleaseSettlementLease(ctx, raffle); err != nil {
		return nil, err
	}
	slog.Warn("Dispersal lease released by operator", "raffleId", raffleID,
		"previousHolder", previous.Holder, "acquiredAt", previous.AcquiredAt)
	return raffle, nil
}

// syncDeposits fetches the raffle's transactions, ingests them on a copy and
// persists the copy when anything was credited. raffle is replaced with the
// persisted state on success and left untouched on failure.
func syncDeposits(
	ctx context.Context,
	repo repositories.RaffleRepository,
	gateway chaingateway.Gateway,
	metrics *observability.EngineMetrics,
	raffle *models.Raffle,
	now time.Time,
) (ledger.Result, error) {
	txs, err := gateway.Transactions(ctx, raffle.ReceivingAddress, raffle.DepositAsset)
	if err != nil {
		return ledger.Result{}, fmt.Errorf("failed to fetch deposits: %w", err)
	}

	working := raffle.Clone()
	res, err := ledger.Ingest(working, txs, now)
	if err != nil {
		if errors.Is(err, ledger.ErrAggregateMismatch) {
			slog.Error("Ledger invariant violated", "raffleId", raffle.RaffleID, "error", err)
		}
		return res, err
	}
	if !res.Changed() {
		return res, nil
	}

	working.LastProcessedAt = now
	if err := repo.Update(ctx, working); err != nil {
		return res, fmt.Errorf("failed to persist deposits: %w", err)
	}
	metrics.DepositsCredited(raffle.DepositAsset.Symbol(), res.Credited)
	*raffle = *working
	slog.Info("Deposits ingested", "raffleId", raffle.RaffleID, "credited", res.Credited,
		"duplicates", res.Duplicates, "totalEntries", raffle.TotalEntries)
	return res, nil
}
