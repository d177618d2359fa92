package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"loom-backend/application/ports"
	"loom-backend/domain/events"

	"github.com/aws/aws-sdk-go-v2/aws"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"
)

// putEventsLimit is EventBridge's hard cap per PutEvents call
const putEventsLimit = 10

// eventSource identifies this service on the bus
const eventSource = "loom.backend"

// EventBridgePublisher implements ports.EventBus using AWS EventBridge.
// Downstream consumers (the ws-send fan-out Lambda, audit sinks) subscribe
// by detail-type, which is the domain event's name.
type EventBridgePublisher struct {
	client  *awseventbridge.Client
	busName string
	logger  *zap.Logger
}

// NewEventBridgePublisher creates a new publisher
func NewEventBridgePublisher(client *awseventbridge.Client, busName string, logger *zap.Logger) *EventBridgePublisher {
	return &EventBridgePublisher{
		client:  client,
		busName: busName,
		logger:  logger,
	}
}

// Publish sends a single domain event
func (p *EventBridgePublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	return p.PublishBatch(ctx, []events.DomainEvent{event})
}

// PublishBatch sends multiple domain events, chunked to the API limit
func (p *EventBridgePublisher) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	if len(batch) == 0 {
		return nil
	}

	entries := make([]types.PutEventsRequestEntry, 0, len(batch))
	for _, event := range batch {
		detail, err := json.Marshal(event)
		if err != nil {
			p.logger.Error("Failed to marshal domain event",
				zap.String("eventType", event.GetEventType()),
				zap.Error(err),
			)
			continue
		}
		entries = append(entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(p.busName),
			Source:       aws.String(eventSource),
			DetailType:   aws.String(event.GetEventType()),
			Detail:       aws.String(string(detail)),
		})
	}

	for start := 0; start < len(entries); start += putEventsLimit {
		end := start + putEventsLimit
		if end > len(entries) {
			end = len(entries)
		}
		out, err := p.client.PutEvents(ctx, &awseventbridge.PutEventsInput{
			Entries: entries[start:end],
		})
		if err != nil {
			return fmt.Errorf("failed to publish events: %w", err)
		}
		if out.FailedEntryCount > 0 {
			p.logger.Error("Some events failed to publish",
				zap.Int32("failedCount", out.FailedEntryCount),
			)
			return fmt.Errorf("%d events failed to publish", out.FailedEntryCount)
		}
	}

	p.logger.Debug("Published domain events", zap.Int("count", len(entries)))
	return nil
}

var _ ports.EventBus = (*EventBridgePublisher)(nil)
