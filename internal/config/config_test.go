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

	assert.Equal(t, 15, cfg.SnapshotPollSeconds)
	assert.Equal(t, 60, cfg.DeployPollSeconds)
	assert.Equal(t, 300, cfg.ReseedSeconds)
	assert.Equal(t, 3, cfg.MinSeedItems)
	assert.True(t, cfg.BacklogSeed)
	assert.Equal(t, 0.1, cfg.ErrorRateThreshold)
	assert.Empty(t, cfg.ProviderDailyLimits())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HUB_MIN_SEED_ITEMS", "7")
	t.Setenv("HUB_PROVIDER_DAILY_LIMITS", `{"anthropic": 500000}`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.MinSeedItems)
	limits := cfg.ProviderDailyLimits()
	assert.Equal(t, int64(500000), limits["anthropic"])
}

func TestProviderDailyLimitsMalformed(t *testing.T) {
	cfg := &Config{ProviderDailyLimitsJSON: "{broken"}
	assert.Empty(t, cfg.ProviderDailyLimits(), "malformed limits JSON disables the rules, not the process")
}

func TestDurationHelpers(t *testing.T) {
	cfg := &Config{SnapshotMaxAgeSeconds: 120, DeployTimeoutSeconds: 0}
	assert.Equal(t, 2*time.Minute, cfg.SnapshotMaxAge())
	assert.Equal(t, 8*time.Second, cfg.DeployTimeout(), "zero timeout falls back to the default")
}
