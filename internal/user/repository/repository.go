package repository

import (
	"context"
	"errors"

	"imaro-auth/backend/internal/user/domain"
)

// ErrDuplicate is returned by Create when the id, external id or phone number is already taken.
var ErrDuplicate = errors.New("user already exists")

// MutateFunc changes a locked user in place. Returning an error aborts the update.
type MutateFunc func(u *domain.User) error

// Repository defines persistence for users.
type Repository interface {
	// GetByID returns the user, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByExternalID returns the user with the given external subject id, or nil if not found.
	GetByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// Update loads the user under a row lock, applies fn and writes the result in one transaction.
	// It returns nil, nil when the user does not exist.
	Update(ctx context.Context, id string, fn MutateFunc) (*domain.User, error)
	// Delete removes the user. It reports false when no row matched.
	Delete(ctx context.Context, id string) (bool, error)
}
