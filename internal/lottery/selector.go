// Package lottery implements deposit-weighted winner selection.
package lottery

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
)

// ErrNoEntries is the sentinel result of a draw with nobody to select
var ErrNoEntries = errors.New("no entries")

// ErrInvalidCount is returned when fewer than one winner is requested
var ErrInvalidCount = errors.New("winner count must be at least 1")

// Entry is a wallet and its selection weight
type Entry struct {
	Wallet string
	Weight float64
}

// RandomSource supplies uniform values in [0, 1)
type RandomSource interface {
	Float64() float64
}

// NewSeededSource returns a deterministic source for the given seed
func NewSeededSource(seed int64) RandomSource {
	return rand.New(rand.NewSource(seed))
}

// NewSeed returns a seed read from the operating system's CSPRNG
func NewSeed() (int64, error) {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("read seed: %w", err)
	}
	return int64(binary.BigEndian.Uint64(buf[:]) &^ (1 << 63)), nil
}

// SelectWinners draws up to count distinct wallets, weighted by Weight,
// without replacement. Entries are walked in the order given, so the result
// is a pure function of entries, count and the random source.
// Entries with a non-positive weight are never selected.
func SelectWinners(entries []Entry, count int, rng RandomSource) ([]string, error) {
	if count < 1 {
		return nil, ErrInvalidCount
	}

	pool := make([]Entry, 0, len(entries))
	var total float64
	for _, e := range entries {
		if e.Weight > 0 {
			pool = append(pool, e)
			total += e.Weight
		}
	}
	if len(pool) == 0 {
		return nil, ErrNoEntries
	}

	n := count
	if len(pool) < n {
		n = len(pool)
	}

	winners := make([]string, 0, n)
	for len(winners) < n {
		idx := pick(pool, rng.Float64()*total)
		winners = append(winners, pool[idx].Wallet)
		pool = append(pool[:idx], pool[idx+1:]...)
		total = sum(pool)
	}
	return winners, nil
}

func pick(pool []Entry, u float64) int {
	remaining := u
	for i, e := range pool {
		remaining -= e.Weight
		if remaining <= 0 {
			return i
		}
	}
	// rounding can leave remaining marginally above zero after the last entry
	return len(pool) - 1
}

func sum(pool []Entry) float64 {
	var t float64
	for _, e := range pool {
		t += e.Weight
	}
	return t
}
