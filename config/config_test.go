package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 7, cfg.Attribution.CodeLength)
	assert.Len(t, cfg.Attribution.CodeAlphabet, 62)
	assert.Equal(t, 7*24*time.Hour, cfg.Attribution.LinkWindow)
	assert.Equal(t, 30*24*time.Hour, cfg.Attribution.SessionWindow)
	assert.True(t, cfg.Commission.PlatformFeeRate.Equal(decimal.RequireFromString("0.10")))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("COMMISSION_TIER_RATES", "0.10, 0.03,0.01")
	t.Setenv("COMMISSION_MULTI_TIER", "true")
	t.Setenv("FRAUD_WINDOW", "30m")
	t.Setenv("REFERRAL_CODE_LENGTH", "not-a-number")

	cfg := Load()

	require.Len(t, cfg.Commission.TierRates, 3)
	assert.True(t, cfg.Commission.TierRates[1].Equal(decimal.RequireFromString("0.03")))
	assert.True(t, cfg.Commission.MultiTierEnabled)
	assert.Equal(t, 30*time.Minute, cfg.Fraud.Window)
	assert.Equal(t, 7, cfg.Attribution.CodeLength)
}

func TestActiveTierRates(t *testing.T) {
	rates := []decimal.Decimal{
		decimal.RequireFromString("0.10"),
		decimal.RequireFromString("0.03"),
		decimal.RequireFromString("0.01"),
	}

	t.Run("single tier when multi-tier disabled", func(t *testing.T) {
		c := CommissionConfig{TierRates: rates, MaxDepth: 3}
		assert.Len(t, c.ActiveTierRates(), 1)
	})

	t.Run("capped by max depth", func(t *testing.T) {
		c := CommissionConfig{TierRates: rates, MultiTierEnabled: true, MaxDepth: 2}
		assert.Len(t, c.ActiveTierRates(), 2)
	})

	t.Run("no rates", func(t *testing.T) {
		c := CommissionConfig{MultiTierEnabled: true}
		assert.Empty(t, c.ActiveTierRates())
	})
}

func TestParseRates(t *testing.T) {
	_, err := ParseRates("0.1,abc")
	assert.Error(t, err)

	rates, err := ParseRates("0.05")
	require.NoError(t, err)
	assert.Equal(t, "0.05", rates[0].String())
}
