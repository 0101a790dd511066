package models

import "time"

// CreateRaffleRequest carries the fields a caller supplies when opening a raffle.
// The custodial address and key reference come from the wallet service.
type CreateRaffleRequest struct {
	Creator          string    `json:"creator" binding:"required"`
	DepositAsset     Asset     `json:"depositAsset" binding:"required"`
	PrizeAsset       Asset     `json:"prizeAsset" binding:"required"`
	PrizeAmount      float64   `json:"prizeAmount" binding:"required,gt=0"`
	PrizeDisplay     string    `json:"prizeDisplay"`
	CreditConversion float64   `json:"creditConversion" binding:"required,gt=0"`
	ExpiresAt        time.Time `json:"expiresAt" binding:"required"`
	WinnersRequested int       `json:"winnersRequested" binding:"required,min=1"`
	ReceivingAddress string    `json:"receivingAddress" binding:"required"`
	KeyRef           string    `json:"keyRef" binding:"required"`
	TreasuryAddress  string    `json:"treasuryAddress"`
}

// RaffleFilter narrows raffle listings
type RaffleFilter struct {
	Creator string
	Status  RaffleStatus
}
