package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "race-engine")

	cfg := Load()

	assert.Equal(t, "8083", cfg.HTTPPort)
	assert.Equal(t, "9099", cfg.MetricsPort)
	assert.Equal(t, 300*time.Second, cfg.Race.BettingWindow)
	assert.True(t, cfg.Race.MinBet.Equal(decimal.RequireFromString("0.00001")))
	assert.Equal(t, 20*time.Second, cfg.Race.RaceDuration)
	assert.Equal(t, 100*time.Millisecond, cfg.Race.RaceStep)
	assert.Equal(t, 100.0, cfg.Race.TrackLength)
	assert.True(t, cfg.Race.AutoContinue)
	assert.Empty(t, cfg.BeaconURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "session-reconciler")
	t.Setenv("BETTING_WINDOW", "90s")
	t.Setenv("MIN_BET", "0.5")
	t.Setenv("AUTO_CONTINUE", "false")
	t.Setenv("TRACK_LENGTH", "250")

	cfg := Load()

	require.Equal(t, "8084", cfg.HTTPPort)
	assert.Equal(t, 90*time.Second, cfg.Race.BettingWindow)
	assert.True(t, cfg.Race.MinBet.Equal(decimal.RequireFromString("0.5")))
	assert.False(t, cfg.Race.AutoContinue)
	assert.Equal(t, 250.0, cfg.Race.TrackLength)
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("BETTING_WINDOW", "soon")
	t.Setenv("MIN_BET", "-1")
	t.Setenv("AUTO_CONTINUE", "maybe")

	cfg := Load()

	assert.Equal(t, 300*time.Second, cfg.Race.BettingWindow)
	assert.True(t, cfg.Race.MinBet.Equal(decimal.RequireFromString("0.00001")))
	assert.True(t, cfg.Race.AutoContinue)
}

func TestAllowedOrigins(t *testing.T) {
	assert.Equal(t, []string{"*"}, Load().AllowedOrigins)

	t.Setenv("CORS_ALLOWED_ORIGINS", " http://a.test, ,http://b.test ")
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, Load().AllowedOrigins)

	t.Setenv("CORS_ALLOWED_ORIGINS", " , ")
	assert.Equal(t, []string{"*"}, Load().AllowedOrigins)
}
