package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ArowuTest/raffle-engine/internal/models"
	"github.com/ArowuTest/raffle-engine/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRaffle(id string) *models.Raffle {
	return &models.Raffle{
		RaffleID:  id,
		Creator:   "kaspa:creator",
		Status:    models.RaffleStatusLive,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestCreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewRaffleRepository()

	raffle := newRaffle("r-1")
	require.NoError(t, repo.Create(ctx, raffle))
	assert.Equal(t, int64(1), raffle.Version)

	err := repo.Create(ctx, newRaffle("r-1"))
	assert.ErrorIs(t, err, repositories.ErrDuplicateRaffle)

	found, err := repo.FindByID(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, "kaspa:creator", found.Creator)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, repositories.ErrRaffleNotFound)
}

func TestFindReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewRaffleRepository()
	require.NoError(t, repo.Create(ctx, newRaffle("r-1")))

	found, err := repo.FindByID(ctx, "r-1")
	require.NoError(t, err)
	found.Winners = append(found.Winners, "kaspa:mallory")

	again, err := repo.FindByID(ctx, "r-1")
	require.NoError(t, err)
	assert.Empty(t, again.Winners)
}

func TestUpdateDetectsVersionConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewRaffleRepository()
	require.NoError(t, repo.Create(ctx, newRaffle("r-1")))

	first, _ := repo.FindByID(ctx, "r-1")
	second, _ := repo.FindByID(ctx, "r-1")

	first.TotalEntries = 1
	require.NoError(t, repo.Update(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.TotalEntries = 5
	err := repo.Update(ctx, second)
	assert.ErrorIs(t, err, repositories.ErrVersionConflict)

	stored, _ := repo.FindByID(ctx, "r-1")
	assert.Equal(t, 1.0, stored.TotalEntries)
}

func TestFindAllFiltersAndSortsByEntries(t *testing.T) {
	ctx := context.Background()
	repo := NewRaffleRepository()
	for i, entries := range []float64{2, 9, 5} {
		r := newRaffle(string(rune('a' + i)))
		r.TotalEntries = entries
		if i == 2 {
			r.Creator = "kaspa:other"
		}
		require.NoError(t, repo.Create(ctx, r))
	}

	all, err := repo.FindAll(ctx, models.RaffleFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{all[0].RaffleID, all[1].RaffleID, all[2].RaffleID})

	mine, err := repo.FindAll(ctx, models.RaffleFilter{Creator: "kaspa:creator"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestFindNeedingAttention(t *testing.T) {
	ctx := context.Background()
	repo := NewRaffleRepository()

	live := newRaffle("live")
	done := newRaffle("done")
	done.Status = models.RaffleStatusCompleted
	done.PrizeDispersed = true
	done.GeneratedTokensDispersed = true
	pending := newRaffle("pending")
	pending.Status = models.RaffleStatusCompleted
	pending.PrizeDispersed = true

	for _, r := range []*models.Raffle{live, done, pending} {
		require.NoError(t, repo.Create(ctx, r))
	}

	raffles, err := repo.FindNeedingAttention(ctx)
	require.NoError(t, err)
	ids := []string{}
	for _, r := range raffles {
		ids = append(ids, r.RaffleID)
	}
	assert.ElementsMatch(t, []string{"live", "pending"}, ids)
}

func TestSettlementLease(t *testing.T) {
	ctx := context.Background()
	repo := NewRaffleRepository()
	require.NoError(t, repo.Create(ctx, newRaffle("r-1")))
	now := time.Now()

	a, _ := repo.FindByID(ctx, "r-1")
	ok, err := repo.ClaimSettlementLease(ctx, a, "worker-a", now, 30*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "worker-a", a.SettlementLease.Holder)

	b, _ := repo.FindByID(ctx, "r-1")
	ok, err = repo.ClaimSettlementLease(ctx, b, "worker-b", now.Add(10*time.Minute), 30*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "fresh lease must block")

	ok, err = repo.ClaimSettlementLease(ctx, b, "worker-b", now.Add(31*time.Minute), 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "stale lease must be reclaimable")
	assert.Equal(t, "worker-b", b.SettlementLease.Holder)

	// a's copy is now stale
	a.TotalEntries = 3
	assert.ErrorIs(t, repo.Update(ctx, a), repositories.ErrVersionConflict)

	released, err := repo.ReleaseSettlementLease(ctx, a, "worker-a")
	require.NoError(t, err)
	assert.False(t, released, "a superseded holder cannot release")
	stored, _ := repo.FindByID(ctx, "r-1")
	assert.Equal(t, "worker-b", stored.SettlementLease.Holder)
	assert.True(t, stored.SettlementLease.Active)

	released, err = repo.ReleaseSettlementLease(ctx, b, "worker-b")
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, b.SettlementLease.Active)

	c, _ := repo.FindByID(ctx, "r-1")
	ok, err = repo.ClaimSettlementLease(ctx, c, "worker-c", now.Add(32*time.Minute), 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.ForceReleaseSettlementLease(ctx, c))
	assert.False(t, c.SettlementLease.Active)
	stored, _ = repo.FindByID(ctx, "r-1")
	assert.False(t, stored.SettlementLease.Active)

	assert.ErrorIs(t, repo.ForceReleaseSettlementLease(ctx, newRaffle("missing")), repositories.ErrRaffleNotFound)
}
