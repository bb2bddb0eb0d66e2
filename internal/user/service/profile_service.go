package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"imaro-auth/backend/internal/logger"
	"imaro-auth/backend/internal/telemetry"
	telemetrydomain "imaro-auth/backend/internal/telemetry/domain"
	"imaro-auth/backend/internal/user/domain"
	"imaro-auth/backend/internal/user/repository"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrAlreadyCompleted = errors.New("profile already completed")
)

// PolicyVersions are the privacy policy and terms versions recorded when a profile is completed.
type PolicyVersions struct {
	Privacy string
	Terms   string
}

// ProfileService manages the profile lifecycle of a user.
type ProfileService struct {
	users    repository.Repository
	versions PolicyVersions
	events   telemetry.EventEmitter
	log      *zap.Logger
}

// NewProfileService returns a ProfileService. events may be nil.
func NewProfileService(users repository.Repository, versions PolicyVersions, events telemetry.EventEmitter, log *zap.Logger) *ProfileService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProfileService{users: users, versions: versions, events: events, log: log}
}

// Get returns the user or ErrUserNotFound.
func (s *ProfileService) Get(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// CompleteProfile writes the mandatory profile fields and marks the profile completed.
// A second call fails with ErrAlreadyCompleted and changes nothing.
func (s *ProfileService) CompleteProfile(ctx context.Context, userID string, fields domain.ProfileFields) (*domain.User, error) {
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	u, err := s.update(ctx, userID, func(u *domain.User) error {
		if u.ProfileCompleted {
			return ErrAlreadyCompleted
		}
		age := fields.Age
		u.FirstName = fields.FirstName
		u.LastName = fields.LastName
		u.Age = &age
		u.Gender = fields.Gender
		u.Country = fields.Country
		u.PrivacyAccepted = fields.PrivacyAccepted
		u.TermsAccepted = fields.TermsAccepted
		u.PrivacyVersion = s.versions.Privacy
		u.TermsVersion = s.versions.Terms
		u.ProfileCompleted = true
		return u.Validate()
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, telemetrydomain.EventProfileCompleted, u)
	return u, nil
}

// UpdateProfile applies the present fields of patch. It never changes the completed flag.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, patch domain.ProfilePatch) (*domain.User, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return s.Get(ctx, userID)
	}
	u, err := s.update(ctx, userID, func(u *domain.User) error {
		patch.Apply(u)
		return u.Validate()
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, telemetrydomain.EventProfileUpdated, u)
	return u, nil
}

// Deactivate clears the active flag. Reactivation is an administrative action outside this service.
func (s *ProfileService) Deactivate(ctx context.Context, userID string) error {
	u, err := s.update(ctx, userID, func(u *domain.User) error {
		u.Active = false
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(ctx, telemetrydomain.EventUserDeactivated, u)
	return nil
}

// Delete removes the user permanently.
func (s *ProfileService) Delete(ctx context.Context, userID string) error {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := s.users.Delete(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	s.emit(ctx, telemetrydomain.EventUserDeleted, u)
	return nil
}

func (s *ProfileService) update(ctx context.Context, userID string, fn repository.MutateFunc) (*domain.User, error) {
	u, err := s.users.Update(ctx, userID, fn)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (s *ProfileService) emit(ctx context.Context, t telemetrydomain.EventType, u *domain.User) {
	logger.WithContext(ctx, s.log).Info("profile changed", zap.String("event", string(t)), zap.String("user_id", u.ID))
	if s.events == nil {
		return
	}
	ev := telemetrydomain.NewAuthEvent(t, u.ID, time.Now())
	ev.ExternalID = u.ExternalID
	ev.AuthMethod = string(u.AuthMethod)
	ev.RequestID = logger.RequestID(ctx)
	telemetry.EmitAsync(s.events, s.log, ev)
}
