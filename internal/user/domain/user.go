package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"imaro-auth/backend/internal/platform/validate"
)

// ErrValidation is wrapped by every invariant violation reported by this package.
var ErrValidation = errors.New("user validation failed")

// AuthMethod is how the user first authenticated.
type AuthMethod string

const (
	AuthMethodPhone  AuthMethod = "phone"
	AuthMethodGoogle AuthMethod = "google"
)

// Gender is the self-reported gender of a user.
type Gender string

const (
	GenderMale           Gender = "male"
	GenderFemale         Gender = "female"
	GenderOther          Gender = "other"
	GenderPreferNotToSay Gender = "prefer_not_to_say"
)

// User is the core user entity. Empty strings and nil pointers mean "not set".
type User struct {
	ID               string     `validate:"required"`
	ExternalID       string     `validate:"required"`
	AuthMethod       AuthMethod `validate:"oneof=phone google"`
	Phone            string     `validate:"required_if=AuthMethod phone"`
	Email            string     `validate:"required_if=AuthMethod google"`
	FirstName        string     `validate:"max=50"`
	LastName         string     `validate:"max=50"`
	Age              *int       `validate:"omitnil,gte=13,lte=120"`
	Gender           Gender     `validate:"omitempty,oneof=male female other prefer_not_to_say"`
	Country          string     `validate:"omitempty,len=3,uppercase,alpha"`
	Active           bool
	PhoneVerified    bool
	EmailVerified    bool
	ProfileCompleted bool
	PrivacyAccepted  bool
	TermsAccepted    bool
	PrivacyVersion   string
	TermsVersion     string
	LastLoginAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

// Validate checks the invariants a stored user must satisfy.
func (u *User) Validate() error {
	return invalid(validate.Struct(u))
}

// ProfileFields are the mandatory fields written when a profile is completed.
type ProfileFields struct {
	FirstName       string `validate:"name"`
	LastName        string `validate:"name"`
	Age             int    `validate:"gte=13,lte=120"`
	Gender          Gender `validate:"oneof=male female other prefer_not_to_say"`
	Country         string `validate:"len=3,uppercase,alpha"`
	PrivacyAccepted bool
	TermsAccepted   bool
}

// Validate trims the names in place and checks every field.
func (f *ProfileFields) Validate() error {
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	return invalid(validate.Struct(f))
}

// ProfilePatch is a partial profile update. Nil fields are left untouched.
type ProfilePatch struct {
	FirstName *string `validate:"omitnil,name"`
	LastName  *string `validate:"omitnil,name"`
	Age       *int    `validate:"omitnil,gte=13,lte=120"`
	Gender    *Gender `validate:"omitnil,oneof=male female other prefer_not_to_say"`
	Country   *string `validate:"omitnil,len=3,uppercase,alpha"`
}

// Empty reports whether the patch changes nothing.
func (p *ProfilePatch) Empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Age == nil && p.Gender == nil && p.Country == nil
}

// Validate trims present names in place and checks every present field.
func (p *ProfilePatch) Validate() error {
	p.FirstName = trimmed(p.FirstName)
	p.LastName = trimmed(p.LastName)
	return invalid(validate.Struct(p))
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// Apply copies the present fields of p onto u.
func (p *ProfilePatch) Apply(u *User) {
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.Age != nil {
		age := *p.Age
		u.Age = &age
	}
	if p.Gender != nil {
		u.Gender = *p.Gender
	}
	if p.Country != nil {
		u.Country = *p.Country
	}
}
