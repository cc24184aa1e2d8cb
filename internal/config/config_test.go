package config

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validKey() string {
	return base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CARD_ENCRYPTION_KEY", validKey())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, 5, cfg.Database.ConnectAttempts)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
	assert.True(t, cfg.App.IsDev())
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CARD_ENCRYPTION_KEY", validKey())
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DATABASE_CONN_MAX_LIFETIME", "90s")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("APP_ENV", "prod")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Database.ConnMaxLifetime)
	assert.True(t, cfg.Redis.Enabled())
	assert.False(t, cfg.App.IsDev())
}

func TestLoadRejectsShortCardKey(t *testing.T) {
	t.Setenv("CARD_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString([]byte("short")))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("CARD_ENCRYPTION_KEY", validKey())
	t.Setenv("SERVER_READ_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
}
