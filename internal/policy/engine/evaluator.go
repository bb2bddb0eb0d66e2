package engine

import (
	"context"
	"errors"

	userdomain "imaro-auth/backend/internal/user/domain"
)

// Denial reasons produced by the access policy.
const (
	ReasonAccountDeactivated = "account_deactivated"
	ReasonProfileIncomplete  = "profile_incomplete"
)

var (
	ErrAccountDeactivated = errors.New("user account is deactivated")
	ErrProfileIncomplete  = errors.New("profile completion required")
	ErrAccessDenied       = errors.New("access denied")
)

// Request describes the operation an authenticated user is attempting.
type Request struct {
	// RequiresProfile is set for operations that need a completed profile.
	RequiresProfile bool
}

// Decision is the outcome of an access evaluation.
type Decision struct {
	Allow  bool
	Reason string
}

// Err returns nil when the decision allows access, otherwise the error matching Reason.
func (d Decision) Err() error {
	if d.Allow {
		return nil
	}
	switch d.Reason {
	case ReasonAccountDeactivated:
		return ErrAccountDeactivated
	case ReasonProfileIncomplete:
		return ErrProfileIncomplete
	default:
		return ErrAccessDenied
	}
}

// Evaluator decides whether a user may perform a request.
type Evaluator interface {
	Evaluate(ctx context.Context, user *userdomain.User, req Request) (Decision, error)
}
