package config

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// EdgeConfig holds all settings for the edge daemon. Values come from
// environment variables; the struct is immutable after LoadEdgeConfig.
type EdgeConfig struct {
	// Inverter
	InverterHost      string
	InverterPort      int
	SlaveID           int
	PollInterval      time.Duration
	InterGroupDelay   time.Duration
	MaxPollBackoff    time.Duration
	RegisterMapPath   string
	RawSnapshotEveryN int

	// Identity
	DeviceID string

	// Upload
	ServerBaseURL    string
	DeviceToken      string
	BatchSize        int
	UploadInterval   time.Duration
	UploadTimeout    time.Duration
	MaxUploadBackoff time.Duration

	// Local state
	SpoolPath  string
	HealthPath string
}

// LoadEdgeConfig reads environment variables and returns a validated
// EdgeConfig. Returns an error listing every violation if any required
// variable is missing or any value is invalid.
func LoadEdgeConfig() (*EdgeConfig, error) {
	cfg := &EdgeConfig{}
	var errs []string

	cfg.InverterHost = strings.TrimSpace(envStr("INVERTER_HOST", ""))
	cfg.InverterPort = envInt("INVERTER_PORT", 502, &errs)
	cfg.SlaveID = envInt("SLAVE_ID", 1, &errs)
	pollIntervalS := envInt("POLL_INTERVAL_S", 5, &errs)
	interGroupDelayMS := envInt("INTER_GROUP_DELAY_MS", 20, &errs)
	maxPollBackoffS := envInt("MAX_POLL_BACKOFF_S", 60, &errs)
	cfg.RegisterMapPath = envStr("REGISTER_MAP_PATH", "")
	cfg.RawSnapshotEveryN = envInt("RAW_SNAPSHOT_EVERY_N_POLLS", 0, &errs)

	cfg.DeviceID = strings.TrimSpace(envStr("DEVICE_ID", cfg.InverterHost))

	cfg.ServerBaseURL = strings.TrimSpace(envStr("SERVER_BASE_URL", ""))
	cfg.DeviceToken = envStr("DEVICE_TOKEN", "")
	cfg.BatchSize = envInt("BATCH_SIZE", 30, &errs)
	uploadIntervalS := envInt("UPLOAD_INTERVAL_S", 10, &errs)
	uploadTimeoutS := envInt("UPLOAD_TIMEOUT_S", 30, &errs)
	maxUploadBackoffS := envInt("MAX_UPLOAD_BACKOFF_S", 300, &errs)

	cfg.SpoolPath = envStr("SPOOL_PATH", "/data/spool.db")
	cfg.HealthPath = envStr("HEALTH_PATH", "/data/health.json")

	// --- Validation ---
	if cfg.InverterHost == "" {
		errs = append(errs, "INVERTER_HOST is required")
	}
	validatePort("INVERTER_PORT", cfg.InverterPort, &errs)
	if cfg.SlaveID < 1 || cfg.SlaveID > 247 {
		errs = append(errs, fmt.Sprintf("SLAVE_ID: must be 1-247, got %d", cfg.SlaveID))
	}
	// Minimum 5 s between poll cycles; the WiNet-S dongle destabilises
	// under faster polling.
	if pollIntervalS < 5 {
		errs = append(errs, fmt.Sprintf("POLL_INTERVAL_S: must be >= 5, got %d", pollIntervalS))
	}
	validateNonNegative("INTER_GROUP_DELAY_MS", interGroupDelayMS, &errs)
	validatePositive("MAX_POLL_BACKOFF_S", maxPollBackoffS, &errs)
	validateNonNegative("RAW_SNAPSHOT_EVERY_N_POLLS", cfg.RawSnapshotEveryN, &errs)
	if cfg.DeviceID == "" {
		errs = append(errs, "DEVICE_ID must not be empty")
	}
	if cfg.ServerBaseURL == "" {
		errs = append(errs, "SERVER_BASE_URL is required")
	} else if !strings.HasPrefix(strings.ToLower(cfg.ServerBaseURL), "https://") {
		errs = append(errs, fmt.Sprintf("SERVER_BASE_URL: must use https://, got %q", truncate(cfg.ServerBaseURL, 20)))
	}
	if cfg.DeviceToken == "" {
		errs = append(errs, "DEVICE_TOKEN is required")
	}
	if cfg.BatchSize < 1 || cfg.BatchSize > 1000 {
		errs = append(errs, fmt.Sprintf("BATCH_SIZE: must be 1-1000, got %d", cfg.BatchSize))
	}
	validatePositive("UPLOAD_INTERVAL_S", uploadIntervalS, &errs)
	validatePositive("UPLOAD_TIMEOUT_S", uploadTimeoutS, &errs)
	validatePositive("MAX_UPLOAD_BACKOFF_S", maxUploadBackoffS, &errs)
	if cfg.SpoolPath == "" {
		errs = append(errs, "SPOOL_PATH must not be empty")
	}
	if cfg.HealthPath == "" {
		errs = append(errs, "HEALTH_PATH must not be empty")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	cfg.PollInterval = time.Duration(pollIntervalS) * time.Second
	cfg.InterGroupDelay = time.Duration(interGroupDelayMS) * time.Millisecond
	cfg.MaxPollBackoff = time.Duration(maxPollBackoffS) * time.Second
	cfg.UploadInterval = time.Duration(uploadIntervalS) * time.Second
	cfg.UploadTimeout = time.Duration(uploadTimeoutS) * time.Second
	cfg.MaxUploadBackoff = time.Duration(maxUploadBackoffS) * time.Second
	return cfg, nil
}

// LogSummary logs the effective edge configuration at startup with the
// device token masked.
func (c *EdgeConfig) LogSummary() {
	log.Printf("[config] edge daemon starting: inverter=%s:%d slave_id=%d "+
		"poll_interval=%s inter_group_delay=%s device_id=%s batch_size=%d "+
		"upload_interval=%s spool_path=%s server_base_url=%s device_token=%s",
		c.InverterHost, c.InverterPort, c.SlaveID,
		c.PollInterval, c.InterGroupDelay, c.DeviceID, c.BatchSize,
		c.UploadInterval, c.SpoolPath, c.ServerBaseURL, MaskToken(c.DeviceToken))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
