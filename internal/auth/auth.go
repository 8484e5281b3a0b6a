// Package auth maps bearer tokens to device ids for the ingest and read
// APIs.
package auth

import (
	"crypto/subtle"
	"fmt"
	"log"
	"strings"

	"github.com/sunspool/sunspool/internal/config"
)

// Registry holds the configured token to device-id mapping. It is
// immutable after parsing and safe for concurrent use.
type Registry struct {
	deviceByToken map[string]string
}

// ParseDeviceTokens parses the DEVICE_TOKENS format, a comma-separated
// list of token:device_id pairs. Malformed entries are skipped with a
// warning; an empty result is an error since the server would reject
// every request.
func ParseDeviceTokens(raw string) (*Registry, error) {
	deviceByToken := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		token, deviceID, ok := strings.Cut(entry, ":")
		if !ok || token == "" || deviceID == "" {
			log.Printf("[auth] warning: skipping malformed DEVICE_TOKENS entry (token %s)", config.MaskToken(entry))
			continue
		}
		if existing, dup := deviceByToken[token]; dup {
			log.Printf("[auth] warning: duplicate token %s maps to both %q and %q; keeping the first",
				config.MaskToken(token), existing, deviceID)
			continue
		}
		deviceByToken[token] = deviceID
	}
	if len(deviceByToken) == 0 {
		return nil, fmt.Errorf("DEVICE_TOKENS contains no valid token:device_id pairs")
	}
	return &Registry{deviceByToken: deviceByToken}, nil
}

// Verify returns the device id for the presented token. The comparison
// runs in constant time over every configured token so response timing
// does not reveal near-matches or registry size ordering.
func (r *Registry) Verify(token string) (string, bool) {
	var (
		deviceID string
		found    byte
	)
	for t, d := range r.deviceByToken {
		match := subtle.ConstantTimeCompare([]byte(t), []byte(token))
		if match == 1 {
			deviceID = d
		}
		found |= byte(match)
	}
	return deviceID, found == 1
}

// Devices returns the configured device ids, for startup logging.
func (r *Registry) Devices() []string {
	out := make([]string, 0, len(r.deviceByToken))
	for _, d := range r.deviceByToken {
		out = append(out, d)
	}
	return out
}

// Tokens returns the configured tokens, for startup strength checks.
// Callers must never log the returned values.
func (r *Registry) Tokens() []string {
	out := make([]string, 0, len(r.deviceByToken))
	for t := range r.deviceByToken {
		out = append(out, t)
	}
	return out
}
