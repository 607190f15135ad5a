// Package config loads process configuration from the environment,
// applying the same default-then-override shape used throughout this
// repository's other stages.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	WarehouseDSN string

	FetchWindowMinutes int
	DedupLookbackHours int
	MinMagnitude       float64

	WarehouseCacheSize int

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownStr := envOrDefault("SHUTDOWN_TIMEOUT", "10s")
	shutdownTimeout, err := time.ParseDuration(shutdownStr)
	if err != nil || shutdownTimeout <= 0 {
		return nil, errors.New("invalid SHUTDOWN_TIMEOUT")
	}

	fetchWindowMinutes := 10
	if s := os.Getenv("FETCH_WINDOW_MINUTES"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil || n <= 0 {
			return nil, errors.New("invalid FETCH_WINDOW_MINUTES")
		}
		fetchWindowMinutes = n
	}

	dedupLookbackHours := 6
	if s := os.Getenv("DEDUP_LOOKBACK_HOURS"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil || n <= 0 {
			return nil, errors.New("invalid DEDUP_LOOKBACK_HOURS")
		}
		dedupLookbackHours = n
	}

	minMagnitude := 0.0
	if s := os.Getenv("MIN_MAGNITUDE"); s != "" {
		f, convErr := strconv.ParseFloat(s, 64)
		if convErr != nil {
			return nil, errors.New("invalid MIN_MAGNITUDE")
		}
		minMagnitude = f
	}

	warehouseCacheSize := 1000
	if s := os.Getenv("WAREHOUSE_CACHE_SIZE"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil || n <= 0 {
			return nil, errors.New("invalid WAREHOUSE_CACHE_SIZE")
		}
		warehouseCacheSize = n
	}

	cfg := &Config{
		WarehouseDSN:       envOrDefault("WAREHOUSE_DSN", "postgres://localhost:5432/seismic?sslmode=disable"),
		FetchWindowMinutes: fetchWindowMinutes,
		DedupLookbackHours: dedupLookbackHours,
		MinMagnitude:       minMagnitude,
		WarehouseCacheSize: warehouseCacheSize,
		HTTPAddr:           envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		LogFormat:          envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
	}

	if cfg.WarehouseDSN == "" {
		return nil, errors.New("WAREHOUSE_DSN is required")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
