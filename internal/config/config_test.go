package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "4000", cfg.Server.Port)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Dispersal.LeaseMaxHold)
	assert.Equal(t, 10*time.Second, cfg.Dispersal.ConfirmationDelay)
	assert.Equal(t, 15.0, cfg.Dispersal.TokenReserve)
	assert.Equal(t, 3.0, cfg.Dispersal.NativeReserve)
	assert.Equal(t, 120*time.Hour, cfg.Dispersal.MaxRaffleDuration)
	assert.True(t, cfg.Gateway.MockAPI)
	assert.Equal(t, "treasury", cfg.Executor.TreasuryKey)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("SCHEDULER_INTERVAL", "5m")
	t.Setenv("DISPERSAL_TREASURYADDRESS", "kaspa:treasury")
	t.Setenv("DISPERSAL_TOKENRESERVE", "20")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("GATEWAY_MOCKAPI", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, "kaspa:treasury", cfg.Dispersal.TreasuryAddress)
	assert.Equal(t, 20.0, cfg.Dispersal.TokenReserve)
	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoDB.URI)
	assert.False(t, cfg.Gateway.MockAPI)
}
