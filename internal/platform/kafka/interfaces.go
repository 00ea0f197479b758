package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Producer publishes to a single topic.
type Producer interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// Consumer reads from a single topic within a consumer group.
type Consumer interface {
	ReadMessage(ctx context.Context) (*kafka.Message, error)
	Close() error
}
