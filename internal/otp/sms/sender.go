// Package sms delivers verification codes over SMS providers.
package sms

import (
	"context"
	"errors"
	"time"
)

const defaultTimeout = 15 * time.Second

// ErrNotConfigured is returned when a provider is missing credentials.
var ErrNotConfigured = errors.New("sms: provider not configured")

// Sender delivers a text message to an E.164 phone number.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}
