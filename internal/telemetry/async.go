package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"imaro-auth/backend/internal/telemetry/domain"
)

// emitTimeout bounds a single async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long the server waits after stopping listeners so in-flight
// async emits can finish before providers and producers close.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine detached from the request context so a finished or
// cancelled request does not abort the emit. Failures are logged. A nil emitter or event is a no-op.
func EmitAsync(emitter EventEmitter, log *zap.Logger, event *domain.AuthEvent) {
	if emitter == nil || event == nil {
		return
	}
	if log == nil {
		log = zap.NewNop()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(ctx, event); err != nil {
			log.Warn("auth event emit failed",
				zap.String("event_type", string(event.Type)),
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
		}
	}()
}
