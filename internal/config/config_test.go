package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost:5432/seismic?sslmode=disable", cfg.WarehouseDSN)
	assert.Equal(t, 10, cfg.FetchWindowMinutes)
	assert.Equal(t, 6, cfg.DedupLookbackHours)
	assert.Equal(t, 0.0, cfg.MinMagnitude)
	assert.Equal(t, 1000, cfg.WarehouseCacheSize)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("WAREHOUSE_DSN", "postgres://warehouse:5432/quakes")
	t.Setenv("FETCH_WINDOW_MINUTES", "180")
	t.Setenv("DEDUP_LOOKBACK_HOURS", "12")
	t.Setenv("MIN_MAGNITUDE", "2.5")
	t.Setenv("WAREHOUSE_CACHE_SIZE", "500")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://warehouse:5432/quakes", cfg.WarehouseDSN)
	assert.Equal(t, 180, cfg.FetchWindowMinutes)
	assert.Equal(t, 12, cfg.DedupLookbackHours)
	assert.Equal(t, 2.5, cfg.MinMagnitude)
	assert.Equal(t, 500, cfg.WarehouseCacheSize)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidFetchWindowMinutes(t *testing.T) {
	t.Setenv("FETCH_WINDOW_MINUTES", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FETCH_WINDOW_MINUTES")
}

func TestLoad_InvalidDedupLookbackHours(t *testing.T) {
	t.Setenv("DEDUP_LOOKBACK_HOURS", "not-a-number")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEDUP_LOOKBACK_HOURS")
}

func TestLoad_InvalidMinMagnitude(t *testing.T) {
	t.Setenv("MIN_MAGNITUDE", "not-a-float")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MIN_MAGNITUDE")
}

func TestLoad_InvalidWarehouseCacheSize(t *testing.T) {
	t.Setenv("WAREHOUSE_CACHE_SIZE", "-1")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WAREHOUSE_CACHE_SIZE")
}
