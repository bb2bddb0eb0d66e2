package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"imaro-auth/backend/internal/telemetry"
	"imaro-auth/backend/internal/telemetry/domain"
)

const instrumentationName = "imaro-auth/events"

// recordEmitter is the part of otellog.Logger the adapter needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that writes account events as OTel log records.
// A nil provider yields a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger(instrumentationName)}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.AuthEvent) error { return nil }

type otelEmitter struct {
	logger recordEmitter
}

// Emit implements telemetry.EventEmitter.
func (e *otelEmitter) Emit(ctx context.Context, event *domain.AuthEvent) error {
	if event == nil {
		return nil
	}
	var rec otellog.Record
	ts := event.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue(string(event.Type)))
	rec.AddAttributes(
		otellog.String("event.id", event.ID),
		otellog.String("event.type", string(event.Type)),
		otellog.String("user.id", event.UserID),
	)
	if event.AuthMethod != "" {
		rec.AddAttributes(otellog.String("auth.method", event.AuthMethod))
	}
	if event.RequestID != "" {
		rec.AddAttributes(otellog.String("request.id", event.RequestID))
	}
	e.logger.Emit(ctx, rec)
	return nil
}
