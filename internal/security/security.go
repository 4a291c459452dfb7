package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DigestLength is the length of a hex-encoded SHA-256 digest, the only
// form in which API secrets are persisted.
const DigestLength = 64

// GenerateAPIKey returns a fresh random API secret as a UUIDv4 hex string.
// The caller must hand the plaintext to the tenant immediately; only its
// digest is ever stored.
func GenerateAPIKey() (string, error) {
	id, errNew := uuid.NewRandom()
	if errNew != nil {
		return "", fmt.Errorf("security: generate api key: %w", errNew)
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

// HashAPIKey returns the hex-encoded SHA-256 digest of a raw secret.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// DigestEqual compares two digests in constant time.
func DigestEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HashPassword returns a bcrypt hash of an admin password.
func HashPassword(password string) (string, error) {
	hash, errGenerate := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if errGenerate != nil {
		return "", fmt.Errorf("security: hash password: %w", errGenerate)
	}
	return string(hash), nil
}

// CheckPassword reports whether a password matches its bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
