package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrHashing indicates the password could not be hashed. bcrypt rejects
// inputs longer than 72 bytes; callers surface this as invalid input, not
// as a server failure.
var ErrHashing = fmt.Errorf("auth: password hashing failed")

// HashPassword hashes a plaintext password with bcrypt. The embedded salt
// makes the output non-deterministic: two calls on the same input yield
// different hashes that both verify.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: password is empty", ErrHashing)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashing, err)
	}
	return string(hash), nil
}

// VerifyPassword recomputes the candidate against the salt embedded in the
// stored hash and compares in constant time. A malformed stored hash yields
// false, indistinguishable from a wrong password.
func VerifyPassword(hash, candidate string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}
