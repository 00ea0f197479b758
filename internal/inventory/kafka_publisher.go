package inventory

import (
	"context"
	"encoding/json"
	"fmt"

	"reservationservice/internal/domain"
	"reservationservice/internal/platform/kafka"

	kafkago "github.com/segmentio/kafka-go"
)

const eventTypeHeader = "event_type"

// KafkaPublisher writes domain events to the InventoryEvents topic as JSON.
type KafkaPublisher struct {
	producer kafka.Producer
}

// NewKafkaPublisher wraps an instrumented producer.
func NewKafkaPublisher(producer kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

// Publish serialises event and writes it keyed by its aggregate.
// WriteMessage (singular) keeps the trace context of ctx on the message.
func (p *KafkaPublisher) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serialize %s: %w", event.EventType(), err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.EventKey()),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: eventTypeHeader, Value: []byte(event.EventType())},
		},
	}
	if err := p.producer.WriteMessage(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.EventType(), err)
	}
	return nil
}
