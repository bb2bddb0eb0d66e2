package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names an account lifecycle event.
type EventType string

const (
	EventUserCreated      EventType = "user.created"
	EventUserLogin        EventType = "user.login"
	EventProfileCompleted EventType = "profile.completed"
	EventProfileUpdated   EventType = "profile.updated"
	EventUserDeactivated  EventType = "user.deactivated"
	EventUserDeleted      EventType = "user.deleted"
)

// AuthEvent is an audit record of something that happened to an account.
type AuthEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	UserID     string    `json:"user_id"`
	ExternalID string    `json:"external_id,omitempty"`
	AuthMethod string    `json:"auth_method,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewAuthEvent returns an event with a fresh id stamped at now.
func NewAuthEvent(t EventType, userID string, now time.Time) *AuthEvent {
	return &AuthEvent{
		ID:         uuid.NewString(),
		Type:       t,
		UserID:     userID,
		OccurredAt: now.UTC(),
	}
}
