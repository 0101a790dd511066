// Package ledger converts chain transactions into raffle credits.
//
// Ingestion is keyed by transaction id, so a gateway that re-delivers or
// reorders transactions across polls never changes the aggregates twice.
package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/ArowuTest/raffle-engine/internal/lottery"
	"github.com/ArowuTest/raffle-engine/internal/models"
	"github.com/ArowuTest/raffle-engine/internal/utils"
)

// ErrAggregateMismatch is returned when the scalar aggregates disagree with the entries
var ErrAggregateMismatch = errors.New("ledger aggregate mismatch")

// ErrInvalidConversion is returned when a raffle has a non-positive credit conversion
var ErrInvalidConversion = errors.New("credit conversion must be positive")

// tolerance is relative to the larger compared value
const tolerance = 1e-9

// Result summarises one ingestion batch
type Result struct {
	Credited     int
	Duplicates   int
	Malformed    int
	NotEligible  int
	CreditsAdded float64
}

// Changed reports whether the batch mutated the raffle
func (r Result) Changed() bool {
	return r.Credited > 0
}

// Ingest credits every eligible, not yet seen transaction to the raffle.
// Malformed transactions are skipped and logged; they never fail the batch.
func Ingest(raffle *models.Raffle, txs []models.ChainTransaction, now time.Time) (Result, error) {
	var res Result
	if raffle.CreditConversion <= 0 || math.IsNaN(raffle.CreditConversion) || math.IsInf(raffle.CreditConversion, 0) {
		return res, fmt.Errorf("raffle %s: %w", raffle.RaffleID, ErrInvalidConversion)
	}

	seen := make(map[string]struct{}, len(raffle.Deposits))
	for _, d := range raffle.Deposits {
		seen[d.TxID] = struct{}{}
	}

	for _, tx := range txs {
		if reason := malformed(tx); reason != "" {
			res.Malformed++
			slog.Warn("Skipping malformed transaction", "raffleId", raffle.RaffleID, "txid", tx.TxID, "reason", reason)
			continue
		}
		if !strings.EqualFold(tx.Operation, models.OperationTransfer) {
			res.NotEligible++
			continue
		}
		amount := tx.AmountTo(raffle.ReceivingAddress)
		if amount <= 0 || tx.From == raffle.ReceivingAddress {
			res.NotEligible++
			continue
		}
		if !tx.AcceptedAt.IsZero() && tx.AcceptedAt.After(raffle.ExpiresAt) {
			res.NotEligible++
			continue
		}
		if _, dup := seen[tx.TxID]; dup {
			res.Duplicates++
			continue
		}

		credits := amount / raffle.CreditConversion
		raffle.Deposits = append(raffle.Deposits, models.DepositRecord{
			TxID:         tx.TxID,
			Wallet:       tx.From,
			Amount:       amount,
			CreditsAdded: credits,
			ObservedAt:   now,
		})
		addToEntry(raffle, tx.From, credits, amount, now)
		raffle.TotalEntries += credits
		raffle.CurrentEntries += credits
		seen[tx.TxID] = struct{}{}

		res.Credited++
		res.CreditsAdded += credits
		slog.Info("Credited deposit", "raffleId", raffle.RaffleID, "txid", tx.TxID,
			"wallet", utils.MaskAddress(tx.From), "amount", amount, "credits", credits)
	}

	if err := Verify(raffle); err != nil {
		return res, err
	}
	return res, nil
}

func malformed(tx models.ChainTransaction) string {
	switch {
	case strings.TrimSpace(tx.TxID) == "":
		return "missing txid"
	case strings.TrimSpace(tx.From) == "":
		return "missing sender"
	case len(tx.Outputs) == 0:
		return "no outputs"
	}
	for _, out := range tx.Outputs {
		if math.IsNaN(out.Amount) || math.IsInf(out.Amount, 0) || out.Amount < 0 {
			return "invalid output amount"
		}
	}
	return ""
}

func addToEntry(raffle *models.Raffle, wallet string, credits, amount float64, now time.Time) {
	for i := range raffle.Entries {
		e := &raffle.Entries[i]
		if e.WalletAddress == wallet {
			e.TotalCreditsAdded += credits
			e.TotalAmount += amount
			e.LastConfirmedAt = now
			return
		}
	}
	raffle.Entries = append(raffle.Entries, models.EntryRecord{
		WalletAddress:     wallet,
		TotalCreditsAdded: credits,
		TotalAmount:       amount,
		LastConfirmedAt:   now,
	})
}

// Verify checks totalEntries == currentEntries == sum of entry credits,
// and that no txid or wallet appears twice.
func Verify(raffle *models.Raffle) error {
	var sum float64
	wallets := make(map[string]struct{}, len(raffle.Entries))
	for _, e := range raffle.Entries {
		if _, dup := wallets[e.WalletAddress]; dup {
			return fmt.Errorf("raffle %s: duplicate entry for wallet %s: %w", raffle.RaffleID, e.WalletAddress, ErrAggregateMismatch)
		}
		wallets[e.WalletAddress] = struct{}{}
		sum += e.TotalCreditsAdded
	}
	txids := make(map[string]struct{}, len(raffle.Deposits))
	for _, d := range raffle.Deposits {
		if _, dup := txids[d.TxID]; dup {
			return fmt.Errorf("raffle %s: duplicate deposit %s: %w", raffle.RaffleID, d.TxID, ErrAggregateMismatch)
		}
		txids[d.TxID] = struct{}{}
	}
	if !approxEqual(raffle.TotalEntries, raffle.CurrentEntries) || !approxEqual(raffle.TotalEntries, sum) {
		return fmt.Errorf("raffle %s: total=%v current=%v sum=%v: %w",
			raffle.RaffleID, raffle.TotalEntries, raffle.CurrentEntries, sum, ErrAggregateMismatch)
	}
	return nil
}

func approxEqual(a, b float64) bool {
	diff := math.Abs(a - b)
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale < 1 {
		return diff <= tolerance
	}
	return diff <= tolerance*scale
}

// Weights returns the entries in insertion order for winner selection
func Weights(raffle *models.Raffle) []lottery.Entry {
	out := make([]lottery.Entry, 0, len(raffle.Entries))
	for _, e := range raffle.Entries {
		out = append(out, lottery.Entry{Wallet: e.WalletAddress, Weight: e.TotalCreditsAdded})
	}
	return out
}
