package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("redis:\n  addr: localhost:6379\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 24*time.Hour, cfg.Statistics.CacheTTL)
	assert.Equal(t, 10, cfg.Statistics.TileLevel)
	assert.Equal(t, 0.1, cfg.Statistics.GapFillThreshold)
	assert.Equal(t, 2000, cfg.Statistics.MaxSamples)
	assert.Equal(t, 6*time.Hour, cfg.Statistics.RefreshInterval)
	assert.Equal(t, "provider_name", cfg.Statistics.DefaultGrouping)
	require.NotNil(t, cfg.Statistics.Clipping)
	assert.True(t, *cfg.Statistics.Clipping)
	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, 1, cfg.Queue.Concurrency)
	assert.Equal(t, 3600, cfg.Queue.TaskTimeout)
	assert.Empty(t, Warnings)
}

func TestLoad_ParsesDurationsAndWarnsOnInvalidValues(t *testing.T) {
	content := `
statistics:
  cache_ttl: 2h
  gap_fill_threshold: 1.5
  default_grouping: by_color
  tile_level: 8
cache:
  backend: badger
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Hour, cfg.Statistics.CacheTTL)
	assert.Equal(t, 8, cfg.Statistics.TileLevel)
	assert.Equal(t, 0.1, cfg.Statistics.GapFillThreshold)
	assert.Equal(t, "provider_name", cfg.Statistics.DefaultGrouping)
	assert.Equal(t, CacheBackendBadger, cfg.Cache.Backend)
	assert.Equal(t, "data/statistics", cfg.Cache.BadgerPath)
	assert.Len(t, Warnings, 2)
}

func TestLoad_RedisCacheWithoutRedisFallsBackToMemory(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		warns   int
	}{
		{"default backend", "server:\n  port: 9000\n", CacheBackendMemory, 1},
		{"explicit redis", "cache:\n  backend: redis\n", CacheBackendMemory, 1},
		{"redis configured", "redis:\n  addr: localhost:6379\n", CacheBackendRedis, 0},
		{"badger without redis", "cache:\n  backend: badger\n", CacheBackendBadger, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			cfg, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Cache.Backend)
			assert.Len(t, Warnings, tt.warns)
		})
	}
}

func TestInit_UsesConfigPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0644))
	t.Setenv("CONFIG_PATH", path)

	require.NoError(t, Init())
	assert.Equal(t, 9000, GlobalConfig.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)

	assert.Empty(t, Warnings)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "eventkit", cfg.MySQL.Database)
	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, 30*time.Second, cfg.Statistics.LockWait)
	assert.Equal(t, "provider_name", cfg.Statistics.DefaultGrouping)
}
