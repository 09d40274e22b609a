// Package auth checks the credentials the controller accepts: the admin API
// key, kept only as a hash, and the secret shared with workers.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HashKey returns the hex SHA-256 of key. Surrounding whitespace is ignored so
// keys pasted into env files still match.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// MatchesHash reports whether token is the admin key behind keyHash.
func MatchesHash(token, keyHash string) bool {
	if keyHash == "" {
		return false
	}
	return Equal(HashKey(token), keyHash)
}

// Equal compares two secrets in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
