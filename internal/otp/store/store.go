// Package store holds pending phone verification codes with expiry and bounded attempts.
package store

import (
	"context"
	"time"
)

// Store keeps at most one pending code per phone number. Operations on the same phone
// number are atomic with respect to each other.
type Store interface {
	// Issue stores codeHash for phone until now+ttl with zero attempts, replacing any prior entry.
	Issue(ctx context.Context, phone, codeHash string, ttl time.Duration) error
	// Verify checks candidate against the pending entry. It returns nil and consumes the entry on a
	// match, or one of domain.ErrNotFound, domain.ErrExpired, domain.ErrAttemptsExceeded or a
	// *domain.MismatchError. A wrong guess that exhausts the budget returns domain.ErrAttemptsExceeded.
	Verify(ctx context.Context, phone, candidate string) error
}
