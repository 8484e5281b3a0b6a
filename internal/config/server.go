package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ServerConfig holds all settings for the API server.
type ServerConfig struct {
	ListenAddress string
	Port          int

	DatabaseURL string
	DBMaxConns  int
	RedisURL    string

	// DeviceTokens is the raw "tok1:dev1,tok2:dev2" string; parsed by
	// the auth package.
	DeviceTokens string

	CacheTTL             time.Duration
	SeriesCacheTTL       time.Duration
	MaxSamplesPerRequest int
	MaxRequestBytes      int

	// RollupRefreshSchedule is a cron expression for the best-effort
	// continuous-aggregate refresh job; empty disables it.
	RollupRefreshSchedule string
}

// LoadServerConfig reads environment variables and returns a validated
// ServerConfig.
func LoadServerConfig() (*ServerConfig, error) {
	cfg := &ServerConfig{}
	var errs []string

	cfg.ListenAddress = strings.TrimSpace(envStr("LISTEN_ADDRESS", "0.0.0.0"))
	cfg.Port = envInt("PORT", 8080, &errs)

	cfg.DatabaseURL = envStr("DATABASE_URL", "")
	cfg.DBMaxConns = envInt("DB_MAX_CONNS", 8, &errs)
	cfg.RedisURL = envStr("REDIS_URL", "")
	cfg.DeviceTokens = envStr("DEVICE_TOKENS", "")

	cacheTTLS := envInt("CACHE_TTL_S", 5, &errs)
	seriesCacheTTLS := envInt("SERIES_CACHE_TTL_S", 30, &errs)
	cfg.MaxSamplesPerRequest = envInt("MAX_SAMPLES_PER_REQUEST", 1000, &errs)
	cfg.MaxRequestBytes = envInt("MAX_REQUEST_BYTES", 1<<20, &errs)
	cfg.RollupRefreshSchedule = strings.TrimSpace(envStr("ROLLUP_REFRESH_SCHEDULE", "@hourly"))

	// --- Validation ---
	if cfg.ListenAddress == "" {
		errs = append(errs, "LISTEN_ADDRESS must not be empty")
	}
	validatePort("PORT", cfg.Port, &errs)
	if cfg.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	validatePositive("DB_MAX_CONNS", cfg.DBMaxConns, &errs)
	if cfg.RedisURL == "" {
		errs = append(errs, "REDIS_URL is required")
	}
	if strings.TrimSpace(cfg.DeviceTokens) == "" {
		errs = append(errs, "DEVICE_TOKENS is required")
	}
	validatePositive("CACHE_TTL_S", cacheTTLS, &errs)
	validateNonNegative("SERIES_CACHE_TTL_S", seriesCacheTTLS, &errs)
	validatePositive("MAX_SAMPLES_PER_REQUEST", cfg.MaxSamplesPerRequest, &errs)
	validatePositive("MAX_REQUEST_BYTES", cfg.MaxRequestBytes, &errs)
	if cfg.RollupRefreshSchedule != "" {
		if _, err := cron.ParseStandard(cfg.RollupRefreshSchedule); err != nil {
			errs = append(errs, fmt.Sprintf("ROLLUP_REFRESH_SCHEDULE: invalid cron expression %q: %v", cfg.RollupRefreshSchedule, err))
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	cfg.CacheTTL = time.Duration(cacheTTLS) * time.Second
	cfg.SeriesCacheTTL = time.Duration(seriesCacheTTLS) * time.Second
	return cfg, nil
}
