package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulwark/internal/ratelimit/models"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	t.Run("login is the layered action with lockout", func(t *testing.T) {
		login := cfg.PolicyFor(models.ActionLogin)
		assert.Equal(t, 5, login.MaxAttempts)
		assert.Equal(t, 5*time.Minute, login.Window)
		assert.Equal(t, float64(2), login.BackoffMultiplier)
		assert.Equal(t, 3, login.CaptchaThreshold)
		assert.Equal(t, 10, login.LockoutThreshold)
		assert.True(t, login.Layered)
	})

	t.Run("api policy has no captcha or lockout", func(t *testing.T) {
		api := cfg.PolicyFor(models.ActionAPI)
		assert.Zero(t, api.CaptchaThreshold)
		assert.Zero(t, api.LockoutThreshold)
		assert.False(t, api.Layered)
	})

	t.Run("unknown action falls back to the api policy", func(t *testing.T) {
		unknown := cfg.PolicyFor("definitelyNotConfigured")
		assert.Equal(t, cfg.PolicyFor(models.ActionAPI), unknown)
	})

	t.Run("actions listed in stable order", func(t *testing.T) {
		actions := cfg.Actions()
		require.Len(t, actions, 5)
		assert.Equal(t, actions, cfg.Actions(), "two listings must agree")
	})
}

func TestParseOverrides(t *testing.T) {
	t.Run("override changes only named keys", func(t *testing.T) {
		cfg, err := Parse([]byte(`
actions:
  login:
    max_attempts: 8
    window: 10m
`))
		require.NoError(t, err)

		login := cfg.PolicyFor(models.ActionLogin)
		assert.Equal(t, 8, login.MaxAttempts)
		assert.Equal(t, 10*time.Minute, login.Window)
		// untouched keys keep their defaults
		assert.Equal(t, 3, login.CaptchaThreshold)
		assert.Equal(t, 10, login.LockoutThreshold)
		assert.True(t, login.Layered)
	})

	t.Run("explicit zero disables captcha", func(t *testing.T) {
		cfg, err := Parse([]byte(`
actions:
  login:
    captcha_threshold: 0
`))
		require.NoError(t, err)
		assert.Zero(t, cfg.PolicyFor(models.ActionLogin).CaptchaThreshold)
	})

	t.Run("caller-defined action starts from the api policy", func(t *testing.T) {
		cfg, err := Parse([]byte(`
actions:
  mfaChallenge:
    max_attempts: 6
    window: 2m
`))
		require.NoError(t, err)

		mfa := cfg.PolicyFor(models.Action("mfaChallenge"))
		assert.Equal(t, 6, mfa.MaxAttempts)
		assert.Equal(t, 2*time.Minute, mfa.Window)
		assert.False(t, mfa.Layered)
		assert.Len(t, cfg.Actions(), 6)
	})

	t.Run("invalid duration rejected", func(t *testing.T) {
		_, err := Parse([]byte(`
actions:
  login:
    window: soon
`))
		require.Error(t, err)
	})

	t.Run("inconsistent policy rejected", func(t *testing.T) {
		_, err := Parse([]byte(`
actions:
  login:
    max_attempts: 0
`))
		require.Error(t, err)
	})

	t.Run("lockout threshold without duration rejected", func(t *testing.T) {
		_, err := Parse([]byte(`
actions:
  api:
    lockout_threshold: 50
`))
		require.Error(t, err)
	})

	t.Run("backoff cap below window rejected", func(t *testing.T) {
		_, err := Parse([]byte(`
actions:
  login:
    backoff_cap: 1m
`))
		require.Error(t, err)
	})

	t.Run("malformed yaml rejected", func(t *testing.T) {
		_, err := Parse([]byte(`actions: ["not", "a", "map"]`))
		require.Error(t, err)
	})
}
