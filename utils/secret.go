package utils

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashSecret returns the bcrypt hash stored in config for a shared secret.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckSecret reports whether secret matches the configured bcrypt hash.
// Surrounding whitespace in the hash, common when pasted into env files, is ignored.
func CheckSecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(hash)), []byte(secret)) == nil
}
