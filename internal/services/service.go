package services

import (
	"context"
	"errors"

	"github.com/ArowuTest/raffle-engine/internal/ledger"
	"github.com/ArowuTest/raffle-engine/internal/models"
)

// ErrInvalidRaffle is returned when a raffle request or state is not acceptable
var ErrInvalidRaffle = errors.New("invalid raffle")

// ErrLeaseHeld is returned when another execution holds a fresh dispersal lease
var ErrLeaseHeld = errors.New("dispersal lease held")

// ErrInvalidCredentials is returned for an unknown operator or a wrong password
var ErrInvalidCredentials = errors.New("invalid credentials")

// RaffleService defines the raffle operations exposed to the API layer
type RaffleService interface {
	CreateRaffle(ctx context.Context, req *models.CreateRaffleRequest) (*models.Raffle, error)
	GetRaffle(ctx context.Context, raffleID string) (*models.Raffle, error)
	ListRaffles(ctx context.Context, filter models.RaffleFilter) ([]*models.Raffle, error)
	// ProcessDeposits ingests the raffle's deposits now instead of waiting for the next tick
	ProcessDeposits(ctx context.Context, raffleID string) (*models.Raffle, ledger.Result, error)
	// ReleaseLease clears a dispersal lease left behind by a crashed execution, whoever holds it
	ReleaseLease(ctx context.Context, raffleID string) (*models.Raffle, error)
}

// DispersalService drives a raffle from expiry to terminal state. Every
// method is a no-op when the raffle is not in the state it handles, so the
// scheduler can call them on every tick.
type DispersalService interface {
	// Complete runs the final ingestion and the draw for a live, expired raffle
	Complete(ctx context.Context, raffle *models.Raffle) error
	// DispersePrizes pays every winner that has no payout record yet under the dispersal lease
	DispersePrizes(ctx context.Context, raffle *models.Raffle) error
	// Settle runs or resumes the settlement sequence under the dispersal lease
	Settle(ctx context.Context, raffle *models.Raffle) error
}

// AuthService defines the interface for operator authentication
type AuthService interface {
	Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error)
}
