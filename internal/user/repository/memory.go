package repository

import (
	"context"
	"sync"
	"time"

	"imaro-auth/backend/internal/user/domain"
)

// MemoryRepository is a map-backed Repository for tests and local tooling.
// Callers always receive copies, so mutating a returned user does not change stored state.
type MemoryRepository struct {
	mu    sync.Mutex
	users map[string]*domain.User
	nowF  func() time.Time
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]*domain.User), nowF: time.Now}
}

func clone(u *domain.User) *domain.User {
	c := *u
	if u.Age != nil {
		age := *u.Age
		c.Age = &age
	}
	if u.LastLoginAt != nil {
		at := *u.LastLoginAt
		c.LastLoginAt = &at
	}
	return &c
}

// GetByID implements Repository.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return clone(u), nil
	}
	return nil, nil
}

// GetByExternalID implements Repository.
func (r *MemoryRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ExternalID == externalID {
			return clone(u), nil
		}
	}
	return nil, nil
}

// Create implements Repository.
func (r *MemoryRepository) Create(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.ID == u.ID || existing.ExternalID == u.ExternalID || (u.Phone != "" && existing.Phone == u.Phone) {
			return ErrDuplicate
		}
	}
	r.users[u.ID] = clone(u)
	return nil
}

// Update implements Repository. fn runs on a copy that is stored only if fn succeeds.
func (r *MemoryRepository) Update(ctx context.Context, id string, fn MutateFunc) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	u := clone(existing)
	if err := fn(u); err != nil {
		return nil, err
	}
	u.UpdatedAt = r.nowF().UTC()
	r.users[id] = u
	return clone(u), nil
}

// Delete implements Repository.
func (r *MemoryRepository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return false, nil
	}
	delete(r.users, id)
	return true, nil
}

// Len returns the number of stored users.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}
