package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"imaro-auth/backend/internal/logger"
	"imaro-auth/backend/internal/otp"
	"imaro-auth/backend/internal/otp/sms"
	"imaro-auth/backend/internal/otp/store"
	"imaro-auth/backend/internal/platform/validate"
)

const (
	// DefaultTTL is how long an issued code stays valid.
	DefaultTTL = 5 * time.Minute

	messageTemplate = "Your Imaro verification code is: %s. This code will expire in %d minutes. Do not share this code with anyone."
)

// ErrDispatchFailed is returned when the SMS gateway could not deliver the code. Nothing is stored.
var ErrDispatchFailed = errors.New("failed to send verification code")

// Options configures an Issuer.
type Options struct {
	TTL        time.Duration
	CodeLength int
	// SendAttempts is the total number of gateway calls per request (1 disables retry).
	SendAttempts uint
	RetryDelay   time.Duration
}

// RequestResult is returned for an accepted OTP request.
type RequestResult struct {
	Message   string
	ExpiresIn time.Duration
}

// Issuer creates codes, delivers them by SMS and verifies them against the store.
type Issuer struct {
	store    store.Store
	sender   sms.Sender
	generate otp.Generator
	opts     Options
	metrics  *Metrics
	log      *zap.Logger
	tracer   trace.Tracer
}

// NewIssuer returns an Issuer. A nil generate uses random codes of opts.CodeLength digits.
func NewIssuer(st store.Store, sender sms.Sender, generate otp.Generator, opts Options, metrics *Metrics, log *zap.Logger) *Issuer {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.CodeLength <= 0 {
		opts.CodeLength = otp.DefaultLength
	}
	if opts.SendAttempts == 0 {
		opts.SendAttempts = 2
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 250 * time.Millisecond
	}
	if generate == nil {
		generate = otp.RandomGenerator(opts.CodeLength)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Issuer{
		store:    st,
		sender:   sender,
		generate: generate,
		opts:     opts,
		metrics:  metrics,
		log:      log,
		tracer:   otel.Tracer("imaro-auth/otp"),
	}
}

// CodeLength returns the number of digits in issued codes.
func (i *Issuer) CodeLength() int {
	return i.opts.CodeLength
}

// RequestOTP validates phone, sends a fresh code and, only once the send succeeds, stores it,
// replacing any code still pending for that number.
func (i *Issuer) RequestOTP(ctx context.Context, phone string) (*RequestResult, error) {
	ctx, span := i.tracer.Start(ctx, "otp.RequestOTP")
	defer span.End()
	log := logger.WithContext(ctx, i.log).With(zap.String("phone", logger.MaskPhone(phone)))

	if err := validate.Phone(phone); err != nil {
		i.metrics.request("invalid")
		return nil, err
	}
	code, err := i.generate()
	if err != nil {
		i.metrics.request("error")
		return nil, fmt.Errorf("generate otp: %w", err)
	}

	minutes := int(i.opts.TTL / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	if err := i.dispatch(ctx, phone, fmt.Sprintf(messageTemplate, code, minutes)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		log.Warn("otp dispatch failed", zap.Error(err))
		i.metrics.request("dispatch_failed")
		return nil, fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}

	if err := i.store.Issue(ctx, phone, otp.HashCode(code), i.opts.TTL); err != nil {
		span.RecordError(err)
		i.metrics.request("error")
		return nil, fmt.Errorf("store otp: %w", err)
	}
	i.metrics.request("sent")
	log.Info("otp issued")
	return &RequestResult{
		Message:   "OTP sent to " + logger.MaskPhone(phone),
		ExpiresIn: i.opts.TTL,
	}, nil
}

func (i *Issuer) dispatch(ctx context.Context, phone, message string) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := i.sender.Send(ctx, phone, message)
		if errors.Is(err, sms.ErrNotConfigured) || errors.Is(err, gobreaker.ErrOpenState) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(i.opts.RetryDelay)),
		backoff.WithMaxTries(i.opts.SendAttempts),
	)
	return err
}

// Verify checks code for phone and consumes it on success. Failures are the store's
// domain errors.
func (i *Issuer) Verify(ctx context.Context, phone, code string) error {
	ctx, span := i.tracer.Start(ctx, "otp.Verify")
	defer span.End()

	err := i.store.Verify(ctx, phone, code)
	i.metrics.verification(err)
	span.SetAttributes(attribute.String("otp.result", verifyResult(err)))
	if err != nil {
		logger.WithContext(ctx, i.log).Info("otp verification failed",
			zap.String("phone", logger.MaskPhone(phone)),
			zap.String("result", verifyResult(err)),
		)
	}
	return err
}
