package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8481", cfg.Server.Addr)
	assert.Equal(t, "box01", cfg.Box.ID)
	assert.Equal(t, "runs", cfg.Box.RunsRoot)
	assert.Equal(t, 200*time.Millisecond, cfg.Jobs.PollInterval)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9999"
box:
  id: bench-3
  channels: 8
jobs:
  poll_interval: 100ms
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "bench-3", cfg.Box.ID)
	assert.Equal(t, 8, cfg.Box.Channels)
	assert.Equal(t, 100*time.Millisecond, cfg.Jobs.PollInterval)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("box:\n  id: from-file\n"), 0o644))

	t.Setenv("BOX_ID", "from-env")
	t.Setenv("BOX_API_KEY", "sekret")
	t.Setenv("RUNS_ROOT", "/data/runs")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Box.ID)
	assert.Equal(t, "sekret", cfg.Box.APIKey)
	assert.Equal(t, "/data/runs", cfg.Box.RunsRoot)
}

func TestUnrelatedEnvironmentIgnored(t *testing.T) {
	t.Setenv("BOX_UNRELATED", "x")
	t.Setenv("PATHLIKE", "y")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "box01", cfg.Box.ID)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing addr", func(c *Config) { c.Server.Addr = "" }},
		{"missing box id", func(c *Config) { c.Box.ID = "" }},
		{"missing runs root", func(c *Config) { c.Box.RunsRoot = "" }},
		{"zero channels", func(c *Config) { c.Box.Channels = 0 }},
		{"zero poll interval", func(c *Config) { c.Jobs.PollInterval = 0 }},
		{"zero cache ttl", func(c *Config) { c.Cache.TTL = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}
