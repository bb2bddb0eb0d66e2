package domain

import (
	"errors"
	"fmt"
	"time"
)

// DefaultMaxAttempts is the number of wrong guesses allowed before a pending code is purged.
const DefaultMaxAttempts = 3

var (
	// ErrNotFound is returned when no code is pending for the phone number.
	ErrNotFound = errors.New("no OTP found for this phone number")
	// ErrExpired is returned when the pending code is past its expiry. The entry is removed.
	ErrExpired = errors.New("OTP has expired")
	// ErrAttemptsExceeded is returned when the attempt budget was already spent. The entry is removed.
	ErrAttemptsExceeded = errors.New("too many failed OTP attempts")
	// ErrMismatch matches any *MismatchError via errors.Is.
	ErrMismatch = errors.New("invalid OTP")
)

// PendingOTP is a code awaiting verification for one phone number.
type PendingOTP struct {
	Phone     string
	CodeHash  string
	ExpiresAt time.Time
	Attempts  int
}

// Expired reports whether the entry is past its expiry at now.
func (p PendingOTP) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// MismatchError is returned for a wrong code while attempts remain.
type MismatchError struct {
	Remaining int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("invalid OTP, %d attempts remaining", e.Remaining)
}

// Is lets errors.Is(err, ErrMismatch) match.
func (e *MismatchError) Is(target error) bool {
	return target == ErrMismatch
}

// RemainingAttempts returns the remaining count carried by a mismatch error, and false otherwise.
func RemainingAttempts(err error) (int, bool) {
	var m *MismatchError
	if errors.As(err, &m) {
		return m.Remaining, true
	}
	return 0, false
}
