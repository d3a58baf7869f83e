package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/opencampus/registrar-api/internal/models"
)

// Publisher emits domain events for downstream consumers (notification,
// reporting). Delivery is best-effort; the core never blocks a business
// operation on a slow subscriber.
type Publisher interface {
	Publish(ctx context.Context, event models.DomainEvent) error
}

// RedisPublisher publishes events on Redis pub/sub channels, one channel
// per event type under a common prefix.
type RedisPublisher struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisPublisher constructs the publisher.
func NewRedisPublisher(client *redis.Client, prefix string, logger *zap.Logger) *RedisPublisher {
	if prefix == "" {
		prefix = "registrar.events"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{client: client, prefix: prefix, logger: logger}
}

// Publish marshals and emits the event.
func (p *RedisPublisher) Publish(ctx context.Context, event models.DomainEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	channel := fmt.Sprintf("%s.%s", p.prefix, event.Type)
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	p.logger.Debug("event published", zap.String("channel", channel), zap.String("event_id", event.ID))
	return nil
}

// NopPublisher discards events. Used in tests and when events are
// disabled by configuration.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, models.DomainEvent) error { return nil }
