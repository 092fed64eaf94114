package auth

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost keeps a single hash in the tens of milliseconds on current
// hardware, throttling both online and offline guessing.
const bcryptCost = 12

const passwordSymbols = `!@#$%^&*(),.?":{}|<>`

// ValidatePassword checks the password policy rules in a fixed priority order
// and reports the first violation only.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return &ValidationError{Field: "password", Reason: "must be at least 8 characters long"}
	}
	if !strings.ContainsFunc(password, unicode.IsUpper) {
		return &ValidationError{Field: "password", Reason: "must contain at least one uppercase letter"}
	}
	if !strings.ContainsFunc(password, unicode.IsLower) {
		return &ValidationError{Field: "password", Reason: "must contain at least one lowercase letter"}
	}
	if !strings.ContainsFunc(password, unicode.IsDigit) {
		return &ValidationError{Field: "password", Reason: "must contain at least one number"}
	}
	if !strings.ContainsAny(password, passwordSymbols) {
		return &ValidationError{Field: "password", Reason: "must contain at least one special character"}
	}
	if len(password) > 72 {
		// bcrypt input limit
		return &ValidationError{Field: "password", Reason: "must be at most 72 characters long"}
	}
	return nil
}

// HashPassword produces a salted one-way digest; every call salts anew, so
// hashing the same password twice yields different digests.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares in constant time with respect to the plaintext.
func VerifyPassword(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
