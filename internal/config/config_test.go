package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("APP_ENV", "")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PASSWORD", "s3cret")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, 20, cfg.DBMaxConns)
	assert.Equal(t, 5*time.Second, cfg.DBAcquireWait)
	assert.Equal(t, 30*time.Second, cfg.DBIdleTimeout)
	assert.Equal(t, int64(100*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTTTL)
	assert.InDelta(t, 0.15, cfg.CommissionRate, 1e-9)
	assert.True(t, cfg.IsDevelopment())
	assert.Contains(t, cfg.DatabaseURL, "db.internal:5432/nexusstore")
	assert.Contains(t, cfg.DatabaseURL, "connect_timeout=5")
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@h/db")
	t.Setenv("JWT_EXPIRES_IN", "12h")
	t.Setenv("STRIPE_COMMISSION", "0.2")
	t.Setenv("MAX_FILE_SIZE", "not-a-number")
	t.Setenv("FRONTEND_URL", "https://store.example.com/")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@h/db", cfg.DatabaseURL)
	assert.Equal(t, 12*time.Hour, cfg.JWTTTL)
	assert.InDelta(t, 0.2, cfg.CommissionRate, 1e-9)
	assert.Equal(t, int64(100*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, "https://store.example.com", cfg.FrontendURL)
}

func TestProductionRequiresSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := FromEnv()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "a-real-secret")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestCommissionOutOfRange(t *testing.T) {
	t.Setenv("STRIPE_COMMISSION", "1.5")
	_, err := FromEnv()
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("7d")
	require.NoError(t, err)
	assert.Equal(t, 168*time.Hour, d)

	d, err = ParseDuration("90m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	_, err = ParseDuration("xd")
	assert.Error(t, err)
}
