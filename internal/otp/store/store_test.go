package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"imaro-auth/backend/internal/otp"
	"imaro-auth/backend/internal/otp/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

const testPhone = "+14155550123"

// storeFactory builds a Store that reads time from clock.
type storeFactory func(t *testing.T, clock *fakeClock) Store

func runStoreContract(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	t.Run("VerifySucceedsOnce", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		if err := s.Issue(ctx, testPhone, otp.HashCode("123456"), 5*time.Minute); err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if err := s.Verify(ctx, testPhone, "123456"); err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if err := s.Verify(ctx, testPhone, "123456"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("second Verify err = %v, want ErrNotFound", err)
		}
	})

	t.Run("NotFoundWithoutIssue", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		if err := s.Verify(ctx, testPhone, "123456"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Verify err = %v, want ErrNotFound", err)
		}
	})

	t.Run("WrongCodeExhaustsAttempts", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		if err := s.Issue(ctx, testPhone, otp.HashCode("123456"), 5*time.Minute); err != nil {
			t.Fatalf("Issue: %v", err)
		}
		for _, want := range []int{2, 1} {
			err := s.Verify(ctx, testPhone, "000000")
			n, ok := domain.RemainingAttempts(err)
			if !ok || n != want {
				t.Fatalf("Verify err = %v, want mismatch with %d remaining", err, want)
			}
		}
		if err := s.Verify(ctx, testPhone, "000000"); !errors.Is(err, domain.ErrAttemptsExceeded) {
			t.Fatalf("third wrong Verify err = %v, want ErrAttemptsExceeded", err)
		}
		if err := s.Verify(ctx, testPhone, "123456"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Verify after exhaustion err = %v, want ErrNotFound", err)
		}
	})

	t.Run("ExpiredIsPurged", func(t *testing.T) {
		clock := newFakeClock()
		s := newStore(t, clock)
		if err := s.Issue(ctx, testPhone, otp.HashCode("123456"), 5*time.Minute); err != nil {
			t.Fatalf("Issue: %v", err)
		}
		clock.Advance(5*time.Minute + time.Second)
		if err := s.Verify(ctx, testPhone, "123456"); !errors.Is(err, domain.ErrExpired) {
			t.Fatalf("Verify err = %v, want ErrExpired", err)
		}
		if err := s.Verify(ctx, testPhone, "123456"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Verify after expiry err = %v, want ErrNotFound", err)
		}
	})

	t.Run("ReissueReplacesCodeAndAttempts", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		if err := s.Issue(ctx, testPhone, otp.HashCode("111111"), 5*time.Minute); err != nil {
			t.Fatalf("Issue: %v", err)
		}
		_ = s.Verify(ctx, testPhone, "000000")
		_ = s.Verify(ctx, testPhone, "000000")
		if err := s.Issue(ctx, testPhone, otp.HashCode("222222"), 5*time.Minute); err != nil {
			t.Fatalf("Issue: %v", err)
		}
		err := s.Verify(ctx, testPhone, "111111")
		if n, ok := domain.RemainingAttempts(err); !ok || n != 2 {
			t.Fatalf("old code err = %v, want mismatch with 2 remaining", err)
		}
		if err := s.Verify(ctx, testPhone, "222222"); err != nil {
			t.Errorf("new code Verify: %v", err)
		}
	})

	t.Run("PhonesAreIndependent", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		other := "+447700900123"
		if err := s.Issue(ctx, testPhone, otp.HashCode("123456"), 5*time.Minute); err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if err := s.Issue(ctx, other, otp.HashCode("654321"), 5*time.Minute); err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if err := s.Verify(ctx, other, "654321"); err != nil {
			t.Fatalf("Verify other: %v", err)
		}
		if err := s.Verify(ctx, testPhone, "123456"); err != nil {
			t.Errorf("Verify first: %v", err)
		}
	})

	t.Run("ConcurrentWrongGuessesNeverLoseAttempts", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		if err := s.Issue(ctx, testPhone, otp.HashCode("123456"), 5*time.Minute); err != nil {
			t.Fatalf("Issue: %v", err)
		}
		const workers = 12
		errs := make(chan error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.Verify(ctx, testPhone, "999999")
			}()
		}
		wg.Wait()
		close(errs)
		var mismatch, exceeded, notFound int
		for err := range errs {
			switch {
			case errors.Is(err, domain.ErrMismatch):
				mismatch++
			case errors.Is(err, domain.ErrAttemptsExceeded):
				exceeded++
			case errors.Is(err, domain.ErrNotFound):
				notFound++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}
		if mismatch != 2 || exceeded != 1 || notFound != workers-3 {
			t.Errorf("mismatch=%d exceeded=%d notFound=%d; want 2, 1, %d", mismatch, exceeded, notFound, workers-3)
		}
	})
}
