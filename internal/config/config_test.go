package config

import (
	"strings"
	"testing"
)

func setEdgeEnv(t *testing.T) {
	t.Helper()
	t.Setenv("INVERTER_HOST", "192.0.2.10")
	t.Setenv("SERVER_BASE_URL", "https://telemetry.example.com")
	t.Setenv("DEVICE_TOKEN", "correct-horse-battery-staple")
}

func TestLoadEdgeConfigDefaults(t *testing.T) {
	setEdgeEnv(t)
	cfg, err := LoadEdgeConfig()
	if err != nil {
		t.Fatalf("LoadEdgeConfig: %v", err)
	}
	if cfg.InverterPort != 502 || cfg.SlaveID != 1 {
		t.Errorf("inverter defaults: port=%d slave=%d", cfg.InverterPort, cfg.SlaveID)
	}
	if cfg.PollInterval.Seconds() != 5 || cfg.UploadInterval.Seconds() != 10 {
		t.Errorf("intervals: poll=%s upload=%s", cfg.PollInterval, cfg.UploadInterval)
	}
	if cfg.DeviceID != "192.0.2.10" {
		t.Errorf("DeviceID = %q, want the inverter host by default", cfg.DeviceID)
	}
	if cfg.BatchSize != 30 || cfg.SpoolPath != "/data/spool.db" {
		t.Errorf("batch=%d spool=%q", cfg.BatchSize, cfg.SpoolPath)
	}
	if cfg.MaxUploadBackoff.Seconds() != 300 || cfg.MaxPollBackoff.Seconds() != 60 {
		t.Errorf("backoff caps: upload=%s poll=%s", cfg.MaxUploadBackoff, cfg.MaxPollBackoff)
	}
}

func TestLoadEdgeConfigCollectsAllErrors(t *testing.T) {
	t.Setenv("INVERTER_HOST", "")
	t.Setenv("SERVER_BASE_URL", "http://insecure.example.com")
	t.Setenv("DEVICE_TOKEN", "")
	t.Setenv("POLL_INTERVAL_S", "2")
	t.Setenv("BATCH_SIZE", "5000")

	_, err := LoadEdgeConfig()
	if err == nil {
		t.Fatal("LoadEdgeConfig succeeded with an invalid environment")
	}
	msg := err.Error()
	for _, want := range []string{"INVERTER_HOST", "SERVER_BASE_URL", "DEVICE_TOKEN", "POLL_INTERVAL_S", "BATCH_SIZE"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error does not mention %s:\n%s", want, msg)
		}
	}
}

func TestEdgeConfigRejectsPlainHTTP(t *testing.T) {
	setEdgeEnv(t)
	t.Setenv("SERVER_BASE_URL", "http://telemetry.example.com")
	if _, err := LoadEdgeConfig(); err == nil || !strings.Contains(err.Error(), "https://") {
		t.Errorf("err = %v, want https scheme violation", err)
	}
}

func TestEdgeConfigErrorOmitsFullURL(t *testing.T) {
	setEdgeEnv(t)
	t.Setenv("SERVER_BASE_URL", "http://secret-internal-hostname.example.com/long/path")
	_, err := LoadEdgeConfig()
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "secret-internal-hostname.example.com/long/path") {
		t.Errorf("error leaks the full URL:\n%s", err)
	}
}

func TestEdgeConfigRejectsBadSlaveID(t *testing.T) {
	setEdgeEnv(t)
	for _, bad := range []string{"0", "248", "-1"} {
		t.Setenv("SLAVE_ID", bad)
		if _, err := LoadEdgeConfig(); err == nil || !strings.Contains(err.Error(), "SLAVE_ID") {
			t.Errorf("SLAVE_ID=%s: err = %v, want range violation", bad, err)
		}
	}
}

func setServerEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://user:pw@db:5432/telemetry")
	t.Setenv("REDIS_URL", "redis://redis:6379/0")
	t.Setenv("DEVICE_TOKENS", "tok-1:inv-1")
}

func TestLoadServerConfigDefaults(t *testing.T) {
	setServerEnv(t)
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.Port != 8080 || cfg.DBMaxConns != 8 {
		t.Errorf("port=%d db_max_conns=%d", cfg.Port, cfg.DBMaxConns)
	}
	if cfg.CacheTTL.Seconds() != 5 || cfg.SeriesCacheTTL.Seconds() != 30 {
		t.Errorf("ttls: cache=%s series=%s", cfg.CacheTTL, cfg.SeriesCacheTTL)
	}
	if cfg.MaxSamplesPerRequest != 1000 || cfg.MaxRequestBytes != 1<<20 {
		t.Errorf("limits: samples=%d bytes=%d", cfg.MaxSamplesPerRequest, cfg.MaxRequestBytes)
	}
	if cfg.RollupRefreshSchedule != "@hourly" {
		t.Errorf("schedule = %q, want @hourly", cfg.RollupRefreshSchedule)
	}
}

func TestLoadServerConfigRequiredVars(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("DEVICE_TOKENS", "")
	_, err := LoadServerConfig()
	if err == nil {
		t.Fatal("LoadServerConfig succeeded without required variables")
	}
	for _, want := range []string{"DATABASE_URL", "REDIS_URL", "DEVICE_TOKENS"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %s:\n%s", want, err)
		}
	}
}

func TestLoadServerConfigRejectsBadCron(t *testing.T) {
	setServerEnv(t)
	t.Setenv("ROLLUP_REFRESH_SCHEDULE", "every hour please")
	if _, err := LoadServerConfig(); err == nil || !strings.Contains(err.Error(), "ROLLUP_REFRESH_SCHEDULE") {
		t.Errorf("err = %v, want cron validation failure", err)
	}
}

func TestMaskToken(t *testing.T) {
	masked := MaskToken("super-secret-token")
	if strings.Contains(masked, "super-secret-token") || strings.Contains(masked, "secret") {
		t.Errorf("MaskToken leaks token material: %q", masked)
	}
	if !strings.HasPrefix(masked, "len=18 sha256=") {
		t.Errorf("MaskToken = %q, want len/sha256 fingerprint", masked)
	}
	if MaskToken("") != "empty" {
		t.Errorf("MaskToken(\"\") = %q, want empty marker", MaskToken(""))
	}
}

func TestIsWeakToken(t *testing.T) {
	if !IsWeakToken("password1") {
		t.Error("IsWeakToken(password1) = false, want true")
	}
	if IsWeakToken("vN8#kQz!4mPw7RtY2sXc") {
		t.Error("IsWeakToken rejects a strong random token")
	}
	if IsWeakToken("") {
		t.Error("IsWeakToken(\"\") = true; empty is handled elsewhere")
	}
}
