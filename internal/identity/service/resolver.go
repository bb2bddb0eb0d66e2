package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	identitydomain "imaro-auth/backend/internal/identity/domain"
	"imaro-auth/backend/internal/logger"
	"imaro-auth/backend/internal/platform/validate"
	userdomain "imaro-auth/backend/internal/user/domain"
	"imaro-auth/backend/internal/user/repository"
)

// Sentinel errors for identity resolution; handlers map them to HTTP statuses.
var (
	// ErrAuthenticationFailed wraps every OTP failure kind from the store.
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrIdentityRejected     = errors.New("identity assertion rejected")
	ErrUserVanished         = errors.New("user removed during login")
)

// OTPVerifier consumes a pending code for a phone number.
type OTPVerifier interface {
	Verify(ctx context.Context, phone, code string) error
}

// IdentityVerifier checks a third-party identity assertion.
type IdentityVerifier interface {
	Verify(ctx context.Context, assertion string) (*identitydomain.VerifiedIdentity, error)
}

// UserRepo is the minimal user repository needed for identity resolution.
type UserRepo interface {
	GetByExternalID(ctx context.Context, externalID string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	Update(ctx context.Context, id string, fn repository.MutateFunc) (*userdomain.User, error)
}

// Resolution is a resolved user and whether this call created it.
type Resolution struct {
	User    *userdomain.User
	Created bool
}

// Resolver maps verified identities to user records, creating them on first sight.
type Resolver struct {
	otp        OTPVerifier
	identities IdentityVerifier
	users      UserRepo
	nowF       func() time.Time
	log        *zap.Logger
}

// NewResolver returns a Resolver. identities may be nil when external login is disabled.
func NewResolver(otp OTPVerifier, identities IdentityVerifier, users UserRepo, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{otp: otp, identities: identities, users: users, nowF: time.Now, log: log}
}

// WithClock overrides the time source. Intended for tests.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.nowF = now
	return r
}

// ResolvePhoneAuth consumes the OTP for phone and returns the matching user, creating a phone user if needed.
// OTP failures are returned wrapped in ErrAuthenticationFailed and keep their otp/domain kind.
func (r *Resolver) ResolvePhoneAuth(ctx context.Context, phone, code string) (*Resolution, error) {
	if err := r.otp.Verify(ctx, phone, code); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	externalID := identitydomain.PhoneSubject(phone)
	res, err := r.findOrCreate(ctx, externalID, func(now time.Time) *userdomain.User {
		return &userdomain.User{
			ID:            uuid.NewString(),
			ExternalID:    externalID,
			AuthMethod:    userdomain.AuthMethodPhone,
			Phone:         phone,
			Active:        true,
			PhoneVerified: true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	})
	if err != nil {
		return nil, err
	}
	return r.recordLogin(ctx, res, func(u *userdomain.User) {
		u.PhoneVerified = true
	})
}

// ResolveExternalAuth verifies assertion with the identity provider and returns the matching user,
// creating a google user if needed.
func (r *Resolver) ResolveExternalAuth(ctx context.Context, assertion string) (*Resolution, error) {
	if r.identities == nil {
		return nil, fmt.Errorf("%w: external login is not configured", ErrIdentityRejected)
	}
	id, err := r.identities.Verify(ctx, assertion)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIdentityRejected, err)
	}
	if id.Email == "" {
		return nil, fmt.Errorf("%w: assertion carries no email", ErrIdentityRejected)
	}
	res, err := r.findOrCreate(ctx, id.Subject, func(now time.Time) *userdomain.User {
		first, last := identitydomain.SplitDisplayName(id.Name)
		return &userdomain.User{
			ID:            uuid.NewString(),
			ExternalID:    id.Subject,
			AuthMethod:    userdomain.AuthMethodGoogle,
			Email:         id.Email,
			FirstName:     truncate(first, validate.MaxNameLen),
			LastName:      truncate(last, validate.MaxNameLen),
			Active:        true,
			EmailVerified: id.EmailVerified,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	})
	if err != nil {
		return nil, err
	}
	return r.recordLogin(ctx, res, func(u *userdomain.User) {
		if id.EmailVerified {
			u.EmailVerified = true
		}
	})
}

func (r *Resolver) findOrCreate(ctx context.Context, externalID string, build func(now time.Time) *userdomain.User) (*Resolution, error) {
	existing, err := r.users.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &Resolution{User: existing}, nil
	}
	u := build(r.nowF().UTC())
	if err := u.Validate(); err != nil {
		return nil, err
	}
	err = r.users.Create(ctx, u)
	if errors.Is(err, repository.ErrDuplicate) {
		// Lost a race with a concurrent first login for the same subject.
		existing, err = r.users.GetByExternalID(ctx, externalID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, ErrUserVanished
		}
		return &Resolution{User: existing}, nil
	}
	if err != nil {
		return nil, err
	}
	r.log.Info("user created",
		zap.String("user_id", u.ID),
		zap.String("auth_method", string(u.AuthMethod)),
		zap.String("phone", logger.MaskPhone(u.Phone)),
		zap.String("email", logger.MaskEmail(u.Email)),
	)
	return &Resolution{User: u, Created: true}, nil
}

func (r *Resolver) recordLogin(ctx context.Context, res *Resolution, mark func(u *userdomain.User)) (*Resolution, error) {
	updated, err := r.users.Update(ctx, res.User.ID, func(u *userdomain.User) error {
		now := r.nowF().UTC()
		u.LastLoginAt = &now
		mark(u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrUserVanished
	}
	res.User = updated
	return res, nil
}

func truncate(s string, max int) string {
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	return string(rs[:max])
}
