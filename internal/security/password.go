package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Cost is the bcrypt work factor; a comparison takes tens of milliseconds.
const Cost = bcrypt.DefaultCost

// dummyHash is compared against when an account does not exist so lookups
// for unknown logins cost the same as real ones.
var dummyHash = mustHash("projecthub-dummy-password")

// HashPassword hashes a plain text password with bcrypt. The salt is embedded in the result.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), Cost)

	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// VerifyPassword compares a bcrypt hash with a plaintext password.
// A malformed stored hash counts as a mismatch.
func VerifyPassword(hash, plain string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))

	return err == nil
}

// BurnCompare spends one bcrypt comparison and always reports false.
func BurnCompare(plain string) bool {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plain))
	return false
}

// IsMalformedHash reports whether hash is not a bcrypt hash at all.
func IsMalformedHash(hash string) bool {
	_, err := bcrypt.Cost([]byte(hash))
	return err != nil
}

// TemporaryPassword returns a random password for administratively created accounts.
func TemporaryPassword() (string, error) {
	b := make([]byte, 12)

	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

func mustHash(plain string) []byte {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), Cost)
	if err != nil {
		panic(errors.New("security: cannot build dummy hash: " + err.Error()))
	}
	return h
}
