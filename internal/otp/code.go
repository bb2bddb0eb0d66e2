// Package otp generates and compares one-time phone verification codes.
package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

// DefaultLength is the number of digits in a code when none is configured.
const DefaultLength = 6

// ErrInvalidLength is returned when a generator is asked for a non-positive code length.
var ErrInvalidLength = errors.New("otp: code length must be positive")

// Generator produces a new numeric code.
type Generator func() (string, error)

// RandomGenerator returns a Generator producing length-digit codes.
func RandomGenerator(length int) Generator {
	return func() (string, error) {
		return GenerateCode(length)
	}
}

// FixedGenerator returns a Generator that always yields code. Development and tests only.
func FixedGenerator(code string) Generator {
	return func() (string, error) {
		return code, nil
	}
}

// GenerateCode returns a numeric code of the given length (e.g. "042917").
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		return "", ErrInvalidLength
	}
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = '0' + b[i]%10
	}
	return string(b), nil
}

// HashCode returns the hex-encoded SHA-256 of code. Stores keep only this value.
func HashCode(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// CodeMatches reports whether candidate hashes to storedHash, in constant time.
func CodeMatches(candidate, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashCode(candidate)), []byte(storedHash)) == 1
}
