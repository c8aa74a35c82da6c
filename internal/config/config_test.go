package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Scrape.Scrolls)
	assert.Equal(t, "random", cfg.Dispatch.Strategy)
	assert.False(t, cfg.Logging.Debug)
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
database: /tmp/test.db
browser:
  headless: true
  navigation_timeout_ms: 5000
dispatch:
  min_delay: 1s
  max_delay: 2s
  strategy: sequential
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test.db", cfg.Database)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 5*time.Second, cfg.NavigationTimeout())

	min, max := cfg.SendDelayBounds()
	assert.Equal(t, time.Second, min)
	assert.Equal(t, 2*time.Second, max)
	assert.Equal(t, "sequential", cfg.Dispatch.Strategy)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DMSCOUT_DB", "/tmp/env.db")
	t.Setenv("DMSCOUT_HEADLESS", "1")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.db", cfg.Database)
	assert.True(t, cfg.Browser.Headless)
}

func TestDelayBoundsNeverInverted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dispatch.MinDelay = "10s"
	cfg.Dispatch.MaxDelay = "2s"

	min, max := cfg.SendDelayBounds()
	assert.GreaterOrEqual(t, max, min)
}

func TestDurationFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Auth.ChallengeTimeout = "garbage"
	assert.Equal(t, 5*time.Minute, cfg.ChallengeTimeout())
}
