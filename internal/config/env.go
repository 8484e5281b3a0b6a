// Package config handles environment-based configuration loading for the
// edge daemon and the API server.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
)

// --- env helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}

func validateNonNegative(name string, value int, errs *[]string) {
	if value < 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be >= 0, got %d", name, value))
	}
}

// MaskToken returns a short non-reversible fingerprint of a secret for
// log lines. The token itself is never logged.
func MaskToken(token string) string {
	if token == "" {
		return "empty"
	}
	digest := sha256.Sum256([]byte(token))
	return fmt.Sprintf("len=%d sha256=%s", len(token), hex.EncodeToString(digest[:])[:10])
}
