package lottery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSource struct {
	values []float64
	i      int
}

func (f *fixedSource) Float64() float64 {
	v := f.values[f.i%len(f.values)]
	f.i++
	return v
}

func TestSelectWinnersWalksCumulativeWeights(t *testing.T) {
	entries := []Entry{{"a", 1}, {"b", 2}, {"c", 3}}

	cases := []struct {
		u    float64
		want string
	}{
		{0, "a"},
		{0.1, "a"},
		{0.5, "b"},
		{0.51, "c"},
		{0.999, "c"},
	}
	for _, tc := range cases {
		winners, err := SelectWinners(entries, 1, &fixedSource{values: []float64{tc.u}})
		require.NoError(t, err)
		assert.Equal(t, []string{tc.want}, winners, "u=%v", tc.u)
	}
}

func TestSelectWinnersWithoutReplacement(t *testing.T) {
	entries := []Entry{{"a", 1}, {"b", 2}, {"c", 3}}
	winners, err := SelectWinners(entries, 3, &fixedSource{values: []float64{0.99}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, winners)
}

func TestSelectWinnersBounds(t *testing.T) {
	entries := []Entry{{"a", 5}, {"b", 0}, {"c", 1}, {"d", -2}, {"e", 0.5}}

	for seed := int64(0); seed < 200; seed++ {
		winners, err := SelectWinners(entries, 10, NewSeededSource(seed))
		require.NoError(t, err)
		assert.Len(t, winners, 3)
		seen := map[string]bool{}
		for _, w := range winners {
			assert.NotContains(t, []string{"b", "d"}, w)
			assert.False(t, seen[w], "duplicate winner %s", w)
			seen[w] = true
		}
	}
}

func TestSelectWinnersNoEntries(t *testing.T) {
	_, err := SelectWinners(nil, 1, NewSeededSource(1))
	assert.ErrorIs(t, err, ErrNoEntries)

	_, err = SelectWinners([]Entry{{"a", 0}, {"b", -1}}, 2, NewSeededSource(1))
	assert.ErrorIs(t, err, ErrNoEntries)
}

func TestSelectWinnersInvalidCount(t *testing.T) {
	_, err := SelectWinners([]Entry{{"a", 1}}, 0, NewSeededSource(1))
	assert.ErrorIs(t, err, ErrInvalidCount)
}

func TestSelectWinnersDeterministicForSeed(t *testing.T) {
	entries := []Entry{{"a", 3}, {"b", 7}, {"c", 1.5}, {"d", 9}}
	first, err := SelectWinners(entries, 2, NewSeededSource(42))
	require.NoError(t, err)
	second, err := SelectWinners(entries, 2, NewSeededSource(42))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSelectWinnersDoesNotMutateInput(t *testing.T) {
	entries := []Entry{{"a", 1}, {"b", 2}, {"c", 3}}
	_, err := SelectWinners(entries, 2, NewSeededSource(7))
	require.NoError(t, err)
	assert.Equal(t, []Entry{{"a", 1}, {"b", 2}, {"c", 3}}, entries)
}

// Deposits of 3000 and 7000 at 1000 per credit give weights 3 and 7.
func TestSelectWinnersFrequencyMatchesWeights(t *testing.T) {
	entries := []Entry{{"kaspa:alice", 3000.0 / 1000}, {"kaspa:bob", 7000.0 / 1000}}
	rng := NewSeededSource(20260101)

	const trials = 20000
	alice := 0
	for i := 0; i < trials; i++ {
		winners, err := SelectWinners(entries, 1, rng)
		require.NoError(t, err)
		if winners[0] == "kaspa:alice" {
			alice++
		}
	}
	assert.InDelta(t, 0.3, float64(alice)/trials, 0.02)
}

func TestNewSeedIsNonNegative(t *testing.T) {
	for i := 0; i < 20; i++ {
		seed, err := NewSeed()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, seed, int64(0))
	}
}
