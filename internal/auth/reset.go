package auth

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

const resetTokenBytes = 32

// ResetTokenService issues single-use password reset tokens. Validation is
// done by the repository, which matches token and expiry in one statement.
type ResetTokenService struct {
	ttl time.Duration
	now func() time.Time
}

func NewResetTokenService(ttl time.Duration) *ResetTokenService {
	return &ResetTokenService{ttl: ttl, now: time.Now}
}

// Generate returns 32 random bytes hex encoded (64 characters) and the expiry.
func (s *ResetTokenService) Generate() (string, time.Time, error) {
	b := make([]byte, resetTokenBytes)

	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, err
	}

	return hex.EncodeToString(b), s.now().UTC().Add(s.ttl), nil
}

// Now is the reference time the repository compares expiry against.
func (s *ResetTokenService) Now() time.Time {
	return s.now().UTC()
}

// LooksValid rejects strings that could never have been issued.
func LooksValid(token string) bool {
	if len(token) != resetTokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}
