package common

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sha256Hex hashes input with SHA-256 and returns lowercase hex. Used to
// derive fixed-length Redis keys from caller-supplied idempotency headers.
func Sha256Hex(input string) string {
	digest := sha256.Sum256([]byte(input))
	return hex.EncodeToString(digest[:])
}
