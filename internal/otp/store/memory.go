package store

import (
	"context"
	"sync"
	"time"

	"imaro-auth/backend/internal/otp"
	"imaro-auth/backend/internal/otp/domain"
)

// MemoryStore is an in-process Store. Each phone number has its own lock so concurrent
// verifications for one number never lose attempt updates.
type MemoryStore struct {
	maxAttempts int
	nowF        func() time.Time

	mu      sync.Mutex
	entries map[string]domain.PendingOTP
	locks   map[string]*phoneLock
}

type phoneLock struct {
	mu   sync.Mutex
	refs int
}

// NewMemoryStore returns an empty MemoryStore. maxAttempts <= 0 uses domain.DefaultMaxAttempts.
func NewMemoryStore(maxAttempts int) *MemoryStore {
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}
	return &MemoryStore{
		maxAttempts: maxAttempts,
		nowF:        time.Now,
		entries:     make(map[string]domain.PendingOTP),
		locks:       make(map[string]*phoneLock),
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.nowF = now
	return s
}

func (s *MemoryStore) lock(phone string) func() {
	s.mu.Lock()
	l, ok := s.locks[phone]
	if !ok {
		l = &phoneLock{}
		s.locks[phone] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, phone)
		}
		s.mu.Unlock()
	}
}

func (s *MemoryStore) get(phone string) (domain.PendingOTP, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.entries[phone]
	return p, ok
}

func (s *MemoryStore) put(p domain.PendingOTP) {
	s.mu.Lock()
	s.entries[p.Phone] = p
	s.mu.Unlock()
}

func (s *MemoryStore) remove(phone string) {
	s.mu.Lock()
	delete(s.entries, phone)
	s.mu.Unlock()
}

// Issue replaces any pending code for phone and drops other entries that have already expired.
func (s *MemoryStore) Issue(ctx context.Context, phone, codeHash string, ttl time.Duration) error {
	unlock := s.lock(phone)
	defer unlock()
	now := s.nowF()
	s.put(domain.PendingOTP{
		Phone:     phone,
		CodeHash:  codeHash,
		ExpiresAt: now.Add(ttl),
	})
	s.purgeExpired(now, phone)
	return nil
}

// purgeExpired deletes expired entries other than skip. Entries whose phone is currently locked
// are left for their holder.
func (s *MemoryStore) purgeExpired(now time.Time, skip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for phone, p := range s.entries {
		if phone == skip || !p.Expired(now) {
			continue
		}
		if _, busy := s.locks[phone]; busy {
			continue
		}
		delete(s.entries, phone)
	}
}

// Verify implements Store. The wrong guess that spends the last attempt reports
// domain.ErrAttemptsExceeded and purges the entry.
func (s *MemoryStore) Verify(ctx context.Context, phone, candidate string) error {
	unlock := s.lock(phone)
	defer unlock()

	p, ok := s.get(phone)
	if !ok {
		return domain.ErrNotFound
	}
	if p.Expired(s.nowF()) {
		s.remove(phone)
		return domain.ErrExpired
	}
	if p.Attempts >= s.maxAttempts {
		s.remove(phone)
		return domain.ErrAttemptsExceeded
	}
	if otp.CodeMatches(candidate, p.CodeHash) {
		s.remove(phone)
		return nil
	}
	p.Attempts++
	if p.Attempts >= s.maxAttempts {
		s.remove(phone)
		return domain.ErrAttemptsExceeded
	}
	s.put(p)
	return &domain.MismatchError{Remaining: s.maxAttempts - p.Attempts}
}

// Len returns the number of pending entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
