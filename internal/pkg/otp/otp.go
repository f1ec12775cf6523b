package otp

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/go-otp-auth/internal/domain"
)

// DefaultValidity is how long an issued code stays verifiable.
const DefaultValidity = 5 * time.Minute

// Verification outcomes, checked by callers with errors.Is.
var (
	ErrNoChallenge = errors.New("no active OTP challenge")
	ErrAlreadyUsed = errors.New("OTP already used")
	ErrExpired     = errors.New("OTP expired")
	ErrMismatch    = errors.New("invalid OTP")
)

// Generate returns a 6-digit decimal code sampled uniformly from
// [100000, 999999] — leading zeros are excluded, giving 900000 possible
// values. crypto/rand keeps codes unpredictable to a caller brute-forcing
// within the validity window.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate OTP: %w", err)
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}

// Issue creates a fresh unused challenge expiring validity from now.
// The caller must store it in place of any prior challenge; there is no
// grace period for previously issued codes.
func Issue(now time.Time, validity time.Duration) (*domain.OTPChallenge, error) {
	if validity <= 0 {
		validity = DefaultValidity
	}
	code, err := Generate()
	if err != nil {
		return nil, err
	}
	return &domain.OTPChallenge{
		Code:      code,
		ExpiresAt: now.Add(validity),
		Used:      false,
	}, nil
}

// Verify checks a submitted code against the stored challenge.
// Checks run in a fixed precedence: missing challenge, then used, then
// expired, then code mismatch. A used or expired challenge can never verify,
// regardless of code match. On nil the caller must mark the challenge used
// and persist it before treating the verification as final.
//
// The code comparison is an exact case-sensitive match, in constant time.
func Verify(c *domain.OTPChallenge, code string, now time.Time) error {
	switch {
	case c == nil:
		return ErrNoChallenge
	case c.Used:
		return ErrAlreadyUsed
	case now.After(c.ExpiresAt):
		return ErrExpired
	case subtle.ConstantTimeCompare([]byte(c.Code), []byte(code)) != 1:
		return ErrMismatch
	}
	return nil
}
