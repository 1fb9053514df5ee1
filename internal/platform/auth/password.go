package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

// HashPassword produces a bcrypt hash suitable for storage.
func HashPassword(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// IsHashed reports whether stored already carries a bcrypt hash. Rows imported
// from the legacy portal hold raw plaintext until their first successful login.
func IsHashed(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") ||
		strings.HasPrefix(stored, "$2b$") ||
		strings.HasPrefix(stored, "$2y$")
}

// VerifyPassword checks candidate against the stored credential. Hashed rows
// go through bcrypt; legacy plaintext rows are compared in constant time so
// the two paths are indistinguishable to a caller timing failures. Both an
// unknown hash format and a mismatch come back as ErrInvalidCredential.
func VerifyPassword(stored, candidate string) error {
	if IsHashed(stored) {
		if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)); err != nil {
			return ErrInvalidCredential
		}
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) != 1 {
		return ErrInvalidCredential
	}
	return nil
}
