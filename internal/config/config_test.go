package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "")
	t.Setenv("DB_PASSWORD", "hunter2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8787", cfg.Port)
	assert.Equal(t, []byte("s3cret"), cfg.JWTSecret)
	assert.Contains(t, cfg.DatabaseURL, "dbname=ripple")
	assert.Contains(t, cfg.DatabaseURL, "password=hunter2")
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.VerifyTimeout)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 30*time.Second, cfg.ShutdownGrace)
}

func TestLoadExplicitDatabaseURL(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DATABASE_URL", "host=db.internal port=5432 user=relay dbname=relay")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "host=db.internal port=5432 user=relay dbname=relay", cfg.DatabaseURL)
}

func TestDurationOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("VERIFY_TIMEOUT_SECONDS", "2")
	t.Setenv("STORE_TIMEOUT_SECONDS", "bogus")
	t.Setenv("SHUTDOWN_GRACE_SECONDS", "-1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.VerifyTimeout)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 30*time.Second, cfg.ShutdownGrace)
}
