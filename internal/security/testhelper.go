package security

import "time"

const testSecret = "test-secret-0123456789abcdef0123456789"

// NewTestTokenProvider returns a TokenProvider with a fixed secret, 15m access and 24h refresh TTLs.
// For unit tests only.
func NewTestTokenProvider() *TokenProvider {
	p, err := NewTokenProvider([]byte(testSecret), "test-issuer", 15*time.Minute, 24*time.Hour)
	if err != nil {
		panic(err)
	}
	return p
}
