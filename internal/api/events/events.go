package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/imagejob-service/internal/api/domain"
)

const contentTypeJSON = "application/json"

// Publisher emits job lifecycle notifications
type Publisher interface {
	Publish(ctx context.Context, event domain.JobEvent) error
}

// MessagePublisher is the transport a Publisher writes to; *rabbitmq.Client satisfies it
type MessagePublisher interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// NoopPublisher discards every event
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, domain.JobEvent) error { return nil }

// BrokerPublisher serializes events as JSON and routes them by event type
type BrokerPublisher struct {
	transport MessagePublisher
	logger    *slog.Logger
}

// NewBrokerPublisher creates a BrokerPublisher on top of transport
func NewBrokerPublisher(transport MessagePublisher, logger *slog.Logger) *BrokerPublisher {
	return &BrokerPublisher{
		transport: transport,
		logger:    logger,
	}
}

// Publish implements Publisher
func (p *BrokerPublisher) Publish(ctx context.Context, event domain.JobEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal job event: %w", err)
	}

	if err := p.transport.PublishWithRetry(ctx, event.Type, body, contentTypeJSON); err != nil {
		return fmt.Errorf("failed to publish job event %s: %w", event.Type, err)
	}

	p.logger.Debug("Job event published",
		slog.String("type", event.Type),
		slog.Int64("job_id", event.JobID),
	)
	return nil
}
