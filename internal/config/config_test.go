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

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "127.0.0.1", cfg.HTTP.Host)
	assert.Equal(t, 7582, cfg.HTTP.Port)
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr)
	assert.Equal(t, "default", cfg.Session.Profile)
	assert.Equal(t, 14*24*time.Hour, cfg.Session.RememberTTL)
	assert.Equal(t, 60*time.Minute, cfg.Session.InactivityWindow)
	assert.Equal(t, "sessiond:events", cfg.Session.Channel)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SESSIOND_ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
}
