package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClient_Defaults(t *testing.T) {
	cfg, err := LoadClient()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000/api/v1", cfg.APIURL)
	assert.Equal(t, StoreMemory, cfg.CredentialStore)
	assert.Equal(t, "mercuria_rt", cfg.RefreshCookieName)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL())
	assert.True(t, cfg.CookieHTTPOnly)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestLoadClient_FromEnvVars(t *testing.T) {
	t.Setenv("MERCURIA_API_URL", "https://api.mercuria.test/v1")
	t.Setenv("MERCURIA_CREDENTIAL_STORE", "redis")
	t.Setenv("MERCURIA_REFRESH_TTL_DAYS", "3")
	t.Setenv("MERCURIA_REQUEST_TIMEOUT", "5s")

	cfg, err := LoadClient()
	require.NoError(t, err)

	assert.Equal(t, "https://api.mercuria.test/v1", cfg.APIURL)
	assert.Equal(t, StoreRedis, cfg.CredentialStore)
	assert.Equal(t, 3*24*time.Hour, cfg.RefreshTTL())
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
}

func TestLoadClient_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown store", "MERCURIA_CREDENTIAL_STORE", "disk"},
		{"relative url", "MERCURIA_API_URL", "/api"},
		{"zero ttl", "MERCURIA_REFRESH_TTL_DAYS", "0"},
		{"bad duration", "MERCURIA_REQUEST_TIMEOUT", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := LoadClient()
			assert.Error(t, err)
		})
	}
}

func TestLoadSandbox(t *testing.T) {
	t.Setenv("SANDBOX_ACCESS_TTL", "1m")

	cfg, err := LoadSandbox()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, time.Minute, cfg.AccessTTL)
	assert.Equal(t, 168*time.Hour, cfg.RefreshTTL)
}
