package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"
)

var (
	ErrAlreadyVerified = errors.New("account already verified")
	ErrCodeNotFound    = errors.New("no verification code on file")
	ErrCodeExpired     = errors.New("verification code expired")
	ErrCodeMismatch    = errors.New("verification code mismatch")
)

const (
	otpMin = 100000
	otpMax = 999999
)

// OTPService issues six digit email verification codes.
type OTPService struct {
	ttl time.Duration
	now func() time.Time
}

func NewOTPService(ttl time.Duration) *OTPService {
	return &OTPService{ttl: ttl, now: time.Now}
}

// Generate returns a uniformly random code in [100000, 999999] and its expiry.
func (s *OTPService) Generate() (string, time.Time, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", time.Time{}, err
	}

	code := fmt.Sprintf("%d", n.Int64()+otpMin)
	return code, s.now().UTC().Add(s.ttl), nil
}

// OTPCheck is the stored state of an account plus the code the caller supplied.
type OTPCheck struct {
	StoredCode      *string
	StoredExpiresAt *time.Time
	AlreadyVerified bool
	Supplied        string
}

// Validate applies the checks in a fixed order: already verified, no code,
// expired, mismatch. Callers depend on which error surfaces first.
func (s *OTPService) Validate(in OTPCheck) error {
	if in.AlreadyVerified {
		return ErrAlreadyVerified
	}

	if in.StoredCode == nil || *in.StoredCode == "" || in.StoredExpiresAt == nil {
		return ErrCodeNotFound
	}

	if s.now().After(*in.StoredExpiresAt) {
		return ErrCodeExpired
	}

	if subtle.ConstantTimeCompare([]byte(*in.StoredCode), []byte(in.Supplied)) != 1 {
		return ErrCodeMismatch
	}

	return nil
}
