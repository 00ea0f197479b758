package inventory

import (
	"context"
	"errors"
	"time"

	"reservationservice/internal/platform/kafka"
	"reservationservice/internal/platform/observability"

	"go.uber.org/zap"
)

const readRetryDelay = time.Second

type ConsumerService interface {
	Start(ctx context.Context) error
}

type KafkaConsumerService struct {
	consumer       kafka.Consumer
	messageHandler MessageHandler
	logger         observability.Logger
}

func NewConsumerService(consumer kafka.Consumer, messageHandler MessageHandler, logger observability.Logger) ConsumerService {
	return &KafkaConsumerService{
		consumer:       consumer,
		messageHandler: messageHandler,
		logger:         logger,
	}
}

// Start reads cart commands until ctx is cancelled. A failing message is logged and skipped.
func (c *KafkaConsumerService) Start(ctx context.Context) error {
	c.logger.Info("Kafka consumer started. Waiting for cart commands...")

	for {
		msg, err := c.consumer.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("Context done, exiting Kafka read loop.", zap.Error(err))
				break
			}
			c.logger.Error("Error reading from Kafka", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(readRetryDelay):
			}
			continue
		}

		if err := c.messageHandler.HandleCartCommand(ctx, *msg); err != nil {
			c.logger.Warn("Cart command failed", zap.Error(err), zap.Int64("offset", msg.Offset))
			continue
		}
	}

	c.logger.Info("Consumer service finished. Shutting down...")
	return nil
}
