// Package memory provides an in-process RaffleRepository used by tests and
// by local runs without MongoDB.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ArowuTest/raffle-engine/internal/models"
	"github.com/ArowuTest/raffle-engine/internal/repositories"
)

// RaffleRepository stores deep copies of raffles keyed by raffle id
type RaffleRepository struct {
	mu      sync.RWMutex
	raffles map[string]*models.Raffle
	order   []string
	now     func() time.Time
}

var _ repositories.RaffleRepository = (*RaffleRepository)(nil)

// NewRaffleRepository creates an empty repository
func NewRaffleRepository() *RaffleRepository {
	return &RaffleRepository{
		raffles: make(map[string]*models.Raffle),
		now:     time.Now,
	}
}

func (r *RaffleRepository) Create(_ context.Context, raffle *models.Raffle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.raffles[raffle.RaffleID]; exists {
		return fmt.Errorf("raffle %s: %w", raffle.RaffleID, repositories.ErrDuplicateRaffle)
	}
	now := r.now()
	raffle.CreatedAt = now
	raffle.UpdatedAt = now
	raffle.Version = 1
	r.raffles[raffle.RaffleID] = raffle.Clone()
	r.order = append(r.order, raffle.RaffleID)
	return nil
}

func (r *RaffleRepository) FindByID(_ context.Context, raffleID string) (*models.Raffle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.raffles[raffleID]
	if !ok {
		return nil, fmt.Errorf("raffle %s: %w", raffleID, repositories.ErrRaffleNotFound)
	}
	return stored.Clone(), nil
}

func (r *RaffleRepository) FindAll(_ context.Context, filter models.RaffleFilter) ([]*models.Raffle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*models.Raffle{}
	for _, id := range r.order {
		raffle := r.raffles[id]
		if filter.Creator != "" && raffle.Creator != filter.Creator {
			continue
		}
		if filter.Status != "" && raffle.Status != filter.Status {
			continue
		}
		out = append(out, raffle.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalEntries > out[j].TotalEntries })
	return out, nil
}

func (r *RaffleRepository) FindNeedingAttention(_ context.Context) ([]*models.Raffle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*models.Raffle{}
	for _, id := range r.order {
		raffle := r.raffles[id]
		if raffle.Status == models.RaffleStatusLive || !raffle.PrizeDispersed || !raffle.GeneratedTokensDispersed {
			out = append(out, raffle.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (r *RaffleRepository) Update(_ context.Context, raffle *models.Raffle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.raffles[raffle.RaffleID]
	if !ok {
		return fmt.Errorf("raffle %s: %w", raffle.RaffleID, repositories.ErrRaffleNotFound)
	}
	if stored.Version != raffle.Version {
		return fmt.Errorf("raffle %s at version %d: %w", raffle.RaffleID, raffle.Version, repositories.ErrVersionConflict)
	}
	raffle.Version++
	raffle.UpdatedAt = r.now()
	r.raffles[raffle.RaffleID] = raffle.Clone()
	return nil
}

func (r *RaffleRepository) ClaimSettlementLease(_ context.Context, raffle *models.Raffle, holder string, now time.Time, maxHold time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.raffles[raffle.RaffleID]
	if !ok {
		return false, fmt.Errorf("raffle %s: %w", raffle.RaffleID, repositories.ErrRaffleNotFound)
	}
	lease := stored.SettlementLease
	if lease.Active && lease.AcquiredAt.After(now.Add(-maxHold)) {
		return false, nil
	}
	stored.SettlementLease = models.Lease{Active: true, Holder: holder, AcquiredAt: now}
	stored.Version++
	stored.UpdatedAt = now
	*raffle = *stored.Clone()
	return true, nil
}

func (r *RaffleRepository) ReleaseSettlementLease(_ context.Context, raffle *models.Raffle, holder string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.raffles[raffle.RaffleID]
	if !ok {
		return false, fmt.Errorf("raffle %s: %w", raffle.RaffleID, repositories.ErrRaffleNotFound)
	}
	if !stored.SettlementLease.Active || stored.SettlementLease.Holder != holder {
		return false, nil
	}
	r.clearLease(stored, raffle)
	return true, nil
}

func (r *RaffleRepository) ForceReleaseSettlementLease(_ context.Context, raffle *models.Raffle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.raffles[raffle.RaffleID]
	if !ok {
		return fmt.Errorf("raffle %s: %w", raffle.RaffleID, repositories.ErrRaffleNotFound)
	}
	r.clearLease(stored, raffle)
	return nil
}

func (r *RaffleRepository) clearLease(stored, raffle *models.Raffle) {
	stored.SettlementLease = models.Lease{}
	stored.Version++
	stored.UpdatedAt = r.now()
	*raffle = *stored.Clone()
}
