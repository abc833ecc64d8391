package auth

import (
	"crypto/sha256"
	"encoding/base64"
)

// Fingerprint is the one-way digest stored in place of a raw refresh token.
func Fingerprint(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(h[:])
}
