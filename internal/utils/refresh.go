package utils

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewRefreshTokenValue returns a random version 4 UUID string (122 bits of
// entropy) used as an opaque refresh token.
func NewRefreshTokenValue() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// HashRefreshRaw returns the SHA-256 hash of the raw refresh token as a hex
// string.  Stores keep only the hash so a leaked table cannot be replayed.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
