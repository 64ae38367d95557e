package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONFIG_FILE", filepath.Join(dir, "config.yaml"))
	t.Setenv("PRIVATE_CONFIG_FILE", filepath.Join(dir, "private_config.yaml"))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 48, cfg.Fetch.PerPage)
	assert.Equal(t, "http", cfg.Fetch.Mode)
	require.NotNil(t, cfg.Limits.PerSecond)
	assert.Equal(t, 2, *cfg.Limits.PerSecond)
	assert.Nil(t, cfg.Limits.PerMinute)
	assert.Equal(t, 60*time.Second, cfg.RetryPause())
	assert.Equal(t, "sqlite3", cfg.AccessLog.Driver)
}

func TestPrivateConfigOverlaysBase(t *testing.T) {
	dir := isolate(t)

	base := `
requester:
  user_agent: base-agent
  request_from: ops@example.com
limits:
  per_second: 5
worker:
  max_retries: 7
`
	private := `
requester:
  user_agent: private-agent
limits:
  per_hour: 100
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(base), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "private_config.yaml"), []byte(private), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "private-agent", cfg.Requester.UserAgent)
	assert.Equal(t, "ops@example.com", cfg.Requester.RequestFrom, "keys missing from the private file survive")
	assert.Equal(t, 5, *cfg.Limits.PerSecond)
	assert.Equal(t, 100, *cfg.Limits.PerHour)
	assert.Equal(t, 7, cfg.Worker.MaxRetries)
	assert.Equal(t, 48, cfg.Fetch.PerPage)
}

func TestEnvOverridesFiles(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("fetch:\n  per_page: 24\n"), 0o644))

	t.Setenv("PER_PAGE", "12")
	t.Setenv("LIMIT_PER_SECOND", "0")
	t.Setenv("LIMIT_PER_DAY", "500")
	t.Setenv("INCLUDE_SSTC", "false")
	t.Setenv("STORE_BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Fetch.PerPage)
	assert.Nil(t, cfg.Limits.PerSecond, "zero disables the limit")
	require.NotNil(t, cfg.Limits.PerDay)
	assert.Equal(t, 500, *cfg.Limits.PerDay)
	assert.False(t, cfg.Fetch.IncludeSSTC)
	assert.Equal(t, "memory", cfg.Store.Backend)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"fetch mode", func(c *Config) { c.Fetch.Mode = "ftp" }},
		{"store backend", func(c *Config) { c.Store.Backend = "s3" }},
		{"log driver", func(c *Config) { c.AccessLog.Driver = "oracle" }},
		{"per page", func(c *Config) { c.Fetch.PerPage = 0 }},
		{"user agent", func(c *Config) { c.Requester.UserAgent = "" }},
		{"timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Defaults().Validate())
}
