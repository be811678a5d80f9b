package server

import (
	"crypto/sha256"
	"encoding/hex"
)

// hashAPIKey is the storage form of an API key; raw keys are never
// persisted.
func hashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// truncateHash shortens a hash for logs and key listings.
func truncateHash(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:16] + "..."
}
