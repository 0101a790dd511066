package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RaffleStatus represents the lifecycle status of a raffle
type RaffleStatus string

const (
	RaffleStatusLive      RaffleStatus = "live"
	RaffleStatusCompleted RaffleStatus = "completed"
)

// AssetKind distinguishes the network's native coin from fungible tokens
type AssetKind string

const (
	AssetKindNative AssetKind = "KAS"
	AssetKindToken  AssetKind = "KRC20"
)

// NativeTicker is the ticker used for the network's native asset
const NativeTicker = "KAS"

// Asset identifies the asset a raffle accepts or pays out
type Asset struct {
	Kind   AssetKind `bson:"kind" json:"kind"`
	Ticker string    `bson:"ticker,omitempty" json:"ticker,omitempty"`
}

// IsNative reports whether the asset is the network's native coin
func (a Asset) IsNative() bool {
	return a.Kind == AssetKindNative
}

// Symbol returns the ticker to quote to external services
func (a Asset) Symbol() string {
	if a.IsNative() {
		return NativeTicker
	}
	return a.Ticker
}

// NativeAsset is the native coin asset descriptor
var NativeAsset = Asset{Kind: AssetKindNative, Ticker: NativeTicker}

// DepositRecord is a single credited transaction
type DepositRecord struct {
	TxID         string    `bson:"txid" json:"txid"`
	Wallet       string    `bson:"wallet" json:"wallet"`
	Amount       float64   `bson:"amount" json:"amount"`
	CreditsAdded float64   `bson:"creditsAdded" json:"creditsAdded"`
	ObservedAt   time.Time `bson:"observedAt" json:"observedAt"`
}

// EntryRecord aggregates all credited deposits of one depositor wallet
type EntryRecord struct {
	WalletAddress     string    `bson:"walletAddress" json:"walletAddress"`
	TotalCreditsAdded float64   `bson:"totalCreditsAdded" json:"totalCreditsAdded"`
	TotalAmount       float64   `bson:"totalAmount" json:"totalAmount"`
	LastConfirmedAt   time.Time `bson:"lastConfirmedAt" json:"lastConfirmedAt"`
}

// PrizePayout records a prize sent to one winner
type PrizePayout struct {
	WinnerAddress string    `bson:"winnerAddress" json:"winnerAddress"`
	TxID          string    `bson:"txid" json:"txid"`
	Amount        float64   `bson:"amount" json:"amount"`
	Timestamp     time.Time `bson:"timestamp" json:"timestamp"`
}

// Lease guards the settlement sequence against concurrent execution.
// A lease older than the configured max hold is considered abandoned.
type Lease struct {
	Active     bool      `bson:"active" json:"active"`
	Holder     string    `bson:"holder,omitempty" json:"holder,omitempty"`
	AcquiredAt time.Time `bson:"acquiredAt,omitempty" json:"acquiredAt,omitempty"`
}

// SettlementStep names one external send of the settlement sequence
type SettlementStep string

const (
	SettlementStepTopUp     SettlementStep = "topup"
	SettlementStepFee       SettlementStep = "fee"
	SettlementStepRemainder SettlementStep = "remainder"
	SettlementStepSweep     SettlementStep = "sweep"
)

// CompletedStep is a settlement step that finished; TxID is empty when the
// step had nothing to send
type CompletedStep struct {
	Step        SettlementStep `bson:"step" json:"step"`
	TxID        string         `bson:"txid,omitempty" json:"txid,omitempty"`
	Amount      float64        `bson:"amount" json:"amount"`
	CompletedAt time.Time      `bson:"completedAt" json:"completedAt"`
}

// SettlementProgress tracks the resumable settlement sequence
type SettlementProgress struct {
	AmountFixed    bool            `bson:"amountFixed" json:"amountFixed"`
	Amount         float64         `bson:"amount" json:"amount"`
	CompletedSteps []CompletedStep `bson:"completedSteps" json:"completedSteps"`
}

// Done reports whether the given step has already completed
func (p SettlementProgress) Done(step SettlementStep) bool {
	for _, s := range p.CompletedSteps {
		if s.Step == step {
			return true
		}
	}
	return false
}

// Raffle represents a single lottery instance
type Raffle struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	RaffleID         string             `bson:"raffleId" json:"raffleId"`
	Creator          string             `bson:"creator" json:"creator"`
	DepositAsset     Asset              `bson:"depositAsset" json:"depositAsset"`
	PrizeAsset       Asset              `bson:"prizeAsset" json:"prizeAsset"`
	PrizeAmount      float64            `bson:"prizeAmount" json:"prizeAmount"`
	PrizeDisplay     string             `bson:"prizeDisplay,omitempty" json:"prizeDisplay,omitempty"`
	CreditConversion float64            `bson:"creditConversion" json:"creditConversion"`

	Status      RaffleStatus `bson:"status" json:"status"`
	ExpiresAt   time.Time    `bson:"expiresAt" json:"expiresAt"`
	CompletedAt time.Time    `bson:"completedAt,omitempty" json:"completedAt,omitempty"`

	Deposits       []DepositRecord `bson:"deposits" json:"deposits"`
	Entries        []EntryRecord   `bson:"entries" json:"entries"`
	TotalEntries   float64         `bson:"totalEntries" json:"totalEntries"`
	CurrentEntries float64         `bson:"currentEntries" json:"currentEntries"`

	WinnersRequested int      `bson:"winnersRequested" json:"winnersRequested"`
	Winners          []string `bson:"winners" json:"winners"`
	DrawSeed         int64    `bson:"drawSeed,omitempty" json:"drawSeed,omitempty"`
	NoEntries        bool     `bson:"noEntries" json:"noEntries"`

	PrizeDispersed           bool               `bson:"prizeDispersed" json:"prizeDispersed"`
	PrizePayouts             []PrizePayout      `bson:"prizePayouts" json:"prizePayouts"`
	GeneratedTokensDispersed bool               `bson:"generatedTokensDispersed" json:"generatedTokensDispersed"`
	SettlementLease          Lease              `bson:"settlementLease" json:"settlementLease"`
	Settlement               SettlementProgress `bson:"settlement" json:"settlement"`

	ReceivingAddress string `bson:"receivingAddress" json:"receivingAddress"`
	KeyRef           string `bson:"keyRef" json:"-"`
	TreasuryAddress  string `bson:"treasuryAddress" json:"treasuryAddress"`

	LastError       string    `bson:"lastError,omitempty" json:"lastError,omitempty"`
	LastProcessedAt time.Time `bson:"lastProcessedAt,omitempty" json:"lastProcessedAt,omitempty"`

	Version   int64     `bson:"version" json:"version"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// IsExpired reports whether the raffle's deposit window has closed
func (r *Raffle) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// IsTerminal reports whether every step of the lifecycle has finished
func (r *Raffle) IsTerminal() bool {
	return r.Status == RaffleStatusCompleted && r.PrizeDispersed && r.GeneratedTokensDispersed
}

// HasPayout reports whether the winner has already been paid
func (r *Raffle) HasPayout(winner string) bool {
	for _, p := range r.PrizePayouts {
		if p.WinnerAddress == winner {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the raffle
func (r *Raffle) Clone() *Raffle {
	c := *r
	c.Deposits = append([]DepositRecord(nil), r.Deposits...)
	c.Entries = append([]EntryRecord(nil), r.Entries...)
	c.Winners = append([]string(nil), r.Winners...)
	c.PrizePayouts = append([]PrizePayout(nil), r.PrizePayouts...)
	c.Settlement.CompletedSteps = append([]CompletedStep(nil), r.Settlement.CompletedSteps...)
	return &c
}
