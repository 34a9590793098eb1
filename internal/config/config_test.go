package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
engine:
  replay_guard: false
  materialize_default_tier: true
stores:
  backend: redis
  cache:
    enabled: true
    size: 128
  redis:
    addr: localhost:6379
    prefix: "refstats:"
pubsub:
  nats:
    url: nats://localhost:4222
dedupe:
  ttl: 2h
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Engine.ReplayGuard)
	assert.True(t, cfg.Engine.MaterializeDefaultTier)
	assert.Equal(t, "redis", cfg.Stores.Backend)
	assert.True(t, cfg.Stores.Cache.Enabled)
	assert.Equal(t, 128, cfg.Stores.Cache.Size)
	assert.Equal(t, "refstats:", cfg.Stores.Redis.Prefix)
	assert.Equal(t, "nats://localhost:4222", cfg.PubSub.NATS.URL)
	assert.Equal(t, "referrals.logs", cfg.PubSub.NATS.EventsSubject)
	assert.Equal(t, 2*time.Hour, cfg.Dedupe.TTL)
	assert.Equal(t, 10*time.Second, cfg.App.ShutdownTimeout)
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.Engine.ReplayGuard)
	assert.Equal(t, "memory", cfg.Stores.Backend)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "engine: [oops"))
	assert.Error(t, err)
}
