package ports

import (
	"context"

	"loom-backend/domain/events"
)

// EventBus publishes domain events to interested consumers
type EventBus interface {
	// Publish sends a single domain event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple domain events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}
