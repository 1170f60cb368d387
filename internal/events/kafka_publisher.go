package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// KafkaEventPublisher publishes events to a single Kafka topic through
// watermill.
type KafkaEventPublisher struct {
	publisher message.Publisher
	topic     string
	logger    *slog.Logger
}

// NewKafkaEventPublisher creates a publisher connected to the given brokers.
func NewKafkaEventPublisher(brokers []string, topic string, logger *slog.Logger) (*KafkaEventPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("Kafka topic is required")
	}

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:   brokers,
			Marshaler: kafka.DefaultMarshaler{},
		},
		watermill.NewSlogLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
	}

	return &KafkaEventPublisher{
		publisher: publisher,
		topic:     topic,
		logger:    logger,
	}, nil
}

// Publish wraps data in the event envelope and sends it to the topic.
func (p *KafkaEventPublisher) Publish(ctx context.Context, eventType string, data interface{}) error {
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    eventSource,
		Version:   eventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("event_type", eventType)
	msg.Metadata.Set("source", eventSource)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", eventType,
			"event_id", event.ID,
			"error", err)
		return fmt.Errorf("failed to publish event %s: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "Event published",
		"event_type", eventType,
		"event_id", event.ID,
		"topic", p.topic)

	return nil
}

// Close shuts down the underlying publisher.
func (p *KafkaEventPublisher) Close() error {
	return p.publisher.Close()
}
