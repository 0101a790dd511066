package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/ArowuTest/raffle-engine/internal/models"
)

// ErrRaffleNotFound is returned when no raffle matches the requested id
var ErrRaffleNotFound = errors.New("raffle not found")

// ErrVersionConflict is returned when a raffle was written by someone else
// between read and update
var ErrVersionConflict = errors.New("raffle version conflict")

// ErrDuplicateRaffle is returned when a raffle id already exists
var ErrDuplicateRaffle = errors.New("raffle already exists")

// RaffleRepository defines the persistence operations for raffles.
// Update is a read-modify-write round trip guarded by the raffle version.
type RaffleRepository interface {
	Create(ctx context.Context, raffle *models.Raffle) error
	FindByID(ctx context.Context, raffleID string) (*models.Raffle, error)
	FindAll(ctx context.Context, filter models.RaffleFilter) ([]*models.Raffle, error)
	// FindNeedingAttention returns raffles that are live or not yet fully dispersed
	FindNeedingAttention(ctx context.Context) ([]*models.Raffle, error)
	Update(ctx context.Context, raffle *models.Raffle) error
	// ClaimSettlementLease atomically takes the settlement lease when it is free
	// or older than maxHold. It reports whether the lease was acquired and, if
	// so, updates raffle in place with the persisted state.
	ClaimSettlementLease(ctx context.Context, raffle *models.Raffle, holder string, now time.Time, maxHold time.Duration) (bool, error)
	// ReleaseSettlementLease clears the lease only while holder still owns it.
	// It reports whether the lease was cleared; raffle is updated in place
	// when it was.
	ReleaseSettlementLease(ctx context.Context, raffle *models.Raffle, holder string) (bool, error)
	// ForceReleaseSettlementLease clears the lease regardless of holder
	ForceReleaseSettlementLease(ctx context.Context, raffle *models.Raffle) error
}
