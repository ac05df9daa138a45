package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hash represents a SHA-256 hash (32 bytes)
type Hash [32]byte

// CalculateDataHash computes the SHA-256 hash of byte data
func CalculateDataHash(data []byte) *Hash {
	hashArray := sha256.Sum256(data)
	hash := Hash(hashArray)
	return &hash
}

// String returns the hash as a hex string
func (h *Hash) String() string {
	return hex.EncodeToString(h[:])
}

// HashAPIKey returns the lookup hash stored for an API key.
// API keys carry 192 bits of entropy, so an unsalted digest is safe to index.
func HashAPIKey(key string) string {
	return CalculateDataHash([]byte(key)).String()
}

// SignHMACSHA256 returns the GitHub-style "sha256=<hex>" signature of payload
func SignHMACSHA256(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSHA256 checks a "sha256=<hex>" signature header in constant time
func VerifyHMACSHA256(secret, payload []byte, signature string) bool {
	if len(secret) == 0 || !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	expected := SignHMACSHA256(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}
