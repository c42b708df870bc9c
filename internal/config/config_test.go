package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, NotifierLog, cfg.Notifier)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 24*time.Hour, cfg.VerificationTokenTTL)
	assert.Equal(t, time.Hour, cfg.ResetTokenTTL)
	assert.Equal(t, 3, cfg.PasswordHashCost)
	assert.Equal(t, 1, cfg.TOTPSkewSteps)
	assert.False(t, cfg.TOTPReplayProtection)
	assert.False(t, cfg.RefreshMismatchRevokes)
	assert.Equal(t, 3, cfg.ConflictRetries)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.MigrateOnStart)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("ACCESS_TOKEN_TTL", "30m")
	t.Setenv("TOTP_SKEW_STEPS", "2")
	t.Setenv("TOTP_REPLAY_PROTECTION", "true")
	t.Setenv("STORE", "memory")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 2, cfg.TOTPSkewSteps)
	assert.True(t, cfg.TOTPReplayProtection)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "short")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			JWTSecret:            testSecret,
			Store:                StoreMemory,
			Notifier:             NotifierLog,
			AccessTokenTTL:       time.Minute,
			RefreshTokenTTL:      time.Hour,
			VerificationTokenTTL: time.Hour,
			ResetTokenTTL:        time.Hour,
			PasswordHashCost:     1,
		}
	}
	require.NoError(t, valid().Validate())

	for name, mutate := range map[string]func(*Config){
		"zero ttl":     func(c *Config) { c.ResetTokenTTL = 0 },
		"cost":         func(c *Config) { c.PasswordHashCost = 0 },
		"skew":         func(c *Config) { c.TOTPSkewSteps = -1 },
		"retries":      func(c *Config) { c.ConflictRetries = -1 },
		"store":        func(c *Config) { c.Store = "mongo" },
		"notifier":     func(c *Config) { c.Notifier = "sms" },
		"weak jwt key": func(c *Config) { c.JWTSecret = "x" },
	} {
		cfg := valid()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}
