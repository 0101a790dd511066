package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ArowuTest/raffle-engine/internal/config"
	"github.com/ArowuTest/raffle-engine/internal/models"
	"github.com/ArowuTest/raffle-engine/internal/repositories/memory"
	"github.com/ArowuTest/raffle-engine/pkg/chaingateway"
	"github.com/ArowuTest/raffle-engine/pkg/payment"
	"github.com/stretchr/testify/require"
)

const (
	treasuryAddr = "kaspa:treasury"
	treasuryKey  = "treasury-key"
	raffleAddr   = "kaspa:raffle"
	raffleKey    = "raffle-key"
	creatorAddr  = "kaspa:creator"
)

var (
	t0    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	nacho = models.Asset{Kind: models.AssetKindToken, Ticker: "NACHO"}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	repo      *memory.RaffleRepository
	gateway   *chaingateway.MockGateway
	executor  *payment.MockExecutor
	clock     *fakeClock
	cfg       config.DispersalConfig
	raffles   *RaffleServiceImpl
	dispersal *DispersalServiceImpl
	scheduler *Scheduler

	mu     sync.Mutex
	sleeps []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		repo:     memory.NewRaffleRepository(),
		gateway:  chaingateway.NewMockGateway(),
		executor: payment.NewMockExecutor("TEST"),
		clock:    &fakeClock{now: t0},
		cfg: config.DispersalConfig{
			TreasuryAddress:   treasuryAddr,
			LeaseMaxHold:      30 * time.Minute,
			ConfirmationDelay: 10 * time.Second,
			TokenReserve:      15,
			NativeReserve:     3,
			MaxRaffleDuration: 5 * 24 * time.Hour,
		},
	}
	// sends move simulated balances: the destination is credited and, for
	// sends signed with the raffle key, the raffle address is debited
	h.executor.OnSend = func(tr payment.Transfer) {
		h.gateway.AdjustBalance(tr.Destination, tr.Asset, tr.Amount)
		if tr.KeyRef == raffleKey {
			h.gateway.AdjustBalance(raffleAddr, tr.Asset, -tr.Amount)
		}
	}
	h.gateway.DeployToken("NACHO")

	h.raffles = NewRaffleService(h.repo, h.gateway, h.gateway, h.cfg, nil)
	h.raffles.now = h.clock.Now
	h.dispersal = NewDispersalService(h.repo, h.gateway, h.executor, h.cfg, treasuryKey,
		WithClock(h.clock.Now),
		WithLeaseHolder("test-holder"),
		WithSeedSource(func() (int64, error) { return 42, nil }),
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.sleeps = append(h.sleeps, d)
			return nil
		}),
	)
	h.scheduler = NewScheduler(h.repo, h.gateway, h.dispersal, nil, time.Minute)
	h.scheduler.now = h.clock.Now
	return h
}

func (h *harness) sleepCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sleeps)
}

func createRequest(deposit models.Asset, winners int) *models.CreateRaffleRequest {
	return &models.CreateRaffleRequest{
		Creator:          creatorAddr,
		DepositAsset:     deposit,
		PrizeAsset:       models.NativeAsset,
		PrizeAmount:      100,
		CreditConversion: 100,
		ExpiresAt:        t0.Add(time.Hour),
		WinnersRequested: winners,
		ReceivingAddress: raffleAddr,
		KeyRef:           raffleKey,
	}
}

func (h *harness) createRaffle(t *testing.T, deposit models.Asset, winners int) *models.Raffle {
	t.Helper()
	raffle, err := h.raffles.CreateRaffle(context.Background(), createRequest(deposit, winners))
	require.NoError(t, err)
	return raffle
}

func (h *harness) deposit(asset models.Asset, txid, from string, amount float64) {
	h.gateway.AddTransaction(raffleAddr, asset, models.ChainTransaction{
		TxID:      txid,
		Operation: models.OperationTransfer,
		From:      from,
		Outputs:   []models.TxOutput{{Address: raffleAddr, Amount: amount}},
	})
}

func (h *harness) reload(t *testing.T, raffleID string) *models.Raffle {
	t.Helper()
	raffle, err := h.repo.FindByID(context.Background(), raffleID)
	require.NoError(t, err)
	return raffle
}

// completedRaffle returns a persisted, completed raffle with the given winners
func (h *harness) completedRaffle(t *testing.T, deposit models.Asset, winners ...string) *models.Raffle {
	t.Helper()
	raffle := h.createRaffle(t, deposit, len(winners)+1)
	raffle.Status = models.RaffleStatusCompleted
	raffle.CompletedAt = h.clock.Now()
	raffle.Winners = winners
	require.NoError(t, h.repo.Update(context.Background(), raffle))
	return raffle
}
