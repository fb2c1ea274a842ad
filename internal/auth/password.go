package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"jobdesk.org/internal/obs"
)

// HashPassword hashes a plaintext password using bcrypt. bcrypt embeds a
// fresh random salt per call, so two hashes of the same password differ.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password against a stored hash in
// constant time. A malformed hash is treated as a mismatch, never a fault.
func VerifyPassword(hash, password string) bool {
	if hash == "" || password == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true
	}
	if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		obs.LogWarn("malformed password hash", map[string]any{"error": err.Error()})
	}
	return false
}
