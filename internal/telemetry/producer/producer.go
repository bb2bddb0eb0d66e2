// Package producer publishes account events to a message broker.
package producer

import (
	"context"
	"strings"

	"imaro-auth/backend/internal/telemetry/domain"
)

// Producer emits account events and owns a broker connection.
type Producer interface {
	Emit(ctx context.Context, event *domain.AuthEvent) error
	// Close flushes and releases the underlying writer. Safe to call more than once.
	Close() error
}

var _ Producer = (*KafkaProducer)(nil)

// New returns a Kafka-backed Producer, or a nil Producer when no broker or topic is configured.
func New(brokers []string, topic string) Producer {
	if strings.TrimSpace(topic) == "" {
		return nil
	}
	kp := NewKafkaProducer(brokers, topic)
	if kp == nil {
		return nil
	}
	return kp
}
