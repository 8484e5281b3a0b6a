package config

import zxcvbn "github.com/ccojocar/zxcvbn-go"

// Tokens scoring below this on the zxcvbn 0-4 scale are flagged at
// startup so operators rotate them.
const weakTokenScoreThreshold = 3

// IsWeakToken reports whether a device token is guessable. Empty tokens
// are rejected earlier by config validation, so they are not counted as
// weak here. Callers warn with a masked fingerprint, never the token.
func IsWeakToken(token string) bool {
	if token == "" {
		return false
	}
	return zxcvbn.PasswordStrength(token, nil).Score < weakTokenScoreThreshold
}
