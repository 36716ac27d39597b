// Package auth provides credential storage and session identity helpers.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters. The iteration count is configurable but clamped so a
// misconfigured environment can neither disable stretching nor pin a CPU.
const (
	// DefaultIterations is used when the configured count is absent,
	// non-numeric or non-positive.
	DefaultIterations = 100000
	// MaxIterations bounds the per-request derivation cost.
	MaxIterations = 100000

	saltLen = 16
	keyLen  = 32

	// algorithmTag identifies the derivation scheme inside encoded hashes,
	// so a future scheme can coexist with hashes already on disk.
	algorithmTag = "pbkdf2_sha256"
)

// ClampIterations resolves a configured iteration count to a usable value.
// Absent, non-numeric and non-positive inputs yield DefaultIterations;
// values above MaxIterations are capped silently.
func ClampIterations(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return DefaultIterations
	}
	if n > MaxIterations {
		return MaxIterations
	}
	return n
}

// HashPassword derives a key from the password with PBKDF2-HMAC-SHA256 and
// a random 16-byte salt, and returns the encoded form:
//
//	pbkdf2_sha256$<iterations>$<salt hex>$<key hex>
func HashPassword(password string, iterations int) (string, error) {
	if iterations <= 0 || iterations > MaxIterations {
		iterations = ClampIterations(strconv.Itoa(iterations))
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, iterations, keyLen, sha256.New)

	return fmt.Sprintf("%s$%d$%s$%s",
		algorithmTag,
		iterations,
		hex.EncodeToString(salt),
		hex.EncodeToString(key),
	), nil
}

// VerifyPassword checks a password against an encoded hash. It never
// returns an error: any malformed input collapses to false. The derived
// key comparison is constant-time.
func VerifyPassword(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 {
		return false
	}
	if parts[0] != algorithmTag {
		return false
	}

	iterations := ClampIterations(parts[1])

	salt, ok := decodeHexField(parts[2])
	if !ok {
		return false
	}
	expected, ok := decodeHexField(parts[3])
	if !ok {
		return false
	}

	derived := pbkdf2.Key([]byte(password), salt, iterations, len(expected), sha256.New)

	return subtle.ConstantTimeCompare(derived, expected) == 1
}

// decodeHexField decodes a hex field strictly: even length, hex digits
// only (either case), non-empty.
func decodeHexField(s string) ([]byte, bool) {
	if s == "" || len(s)%2 != 0 {
		return nil, false
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, false
	}
	return b, true
}
