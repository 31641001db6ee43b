package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, 15, cfg.TimeoutSeconds)
	assert.NotEmpty(t, cfg.UserAgent)
	assert.Equal(t, 100, cfg.MaxIdleConns)
	assert.False(t, cfg.Metrics)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "veil.yaml")
	data := `
listen: ":9999"
timeout_seconds: 30
user_agent: "custom-agent"
allowed_domains:
  - example.com
metrics: true
rate_limit:
  enabled: true
  per_minute: 60
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Listen)
	assert.Equal(t, 30, cfg.TimeoutSeconds)
	assert.Equal(t, "custom-agent", cfg.UserAgent)
	assert.Equal(t, []string{"example.com"}, cfg.AllowedDomains)
	assert.True(t, cfg.Metrics)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 60, cfg.RateLimit.PerMinute)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("USER_AGENT", "env-agent")
	t.Setenv("ALLOWED_DOMAINS", "a.com, b.com,")
	t.Setenv("HTTP_TIMEOUT", "5")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, "env-agent", cfg.UserAgent)
	assert.Equal(t, []string{"a.com", "b.com"}, cfg.AllowedDomains)
	assert.Equal(t, 5, cfg.TimeoutSeconds)
}

func TestLoadRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [not a string"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestAllowsHost(t *testing.T) {
	open := &Config{}
	assert.True(t, open.AllowsHost("anything.example"))

	cfg := &Config{AllowedDomains: []string{"example.com"}}
	assert.True(t, cfg.AllowsHost("example.com"))
	assert.True(t, cfg.AllowsHost("sub.example.com"))
	assert.False(t, cfg.AllowsHost("example.org"))
	assert.False(t, cfg.AllowsHost("notexample.com"))
}
