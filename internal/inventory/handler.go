package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"reservationservice/internal/domain"
	"reservationservice/internal/platform/observability"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

const (
	CommandReserve  = "reserve"
	CommandCheckout = "checkout"
)

// CartCommand is the payload read from the CartCommands topic.
type CartCommand struct {
	Type      string `json:"type"`
	VariantID int64  `json:"variantId"`
	Quantity  int    `json:"quantity"`
	UserID    string `json:"userId"`
}

// MessageHandler defines the interface for processing incoming messages.
type MessageHandler interface {
	HandleCartCommand(ctx context.Context, msg kafkago.Message) error
}

// KafkaMessageHandler drives the reservation and checkout services from Kafka messages
type KafkaMessageHandler struct {
	reservations *ReservationService
	checkouts    *CheckoutService
	logger       observability.Logger
}

// NewMessageHandler creates a new MessageHandler instance with explicit dependencies
func NewMessageHandler(reservations *ReservationService, checkouts *CheckoutService, logger observability.Logger) MessageHandler {
	return &KafkaMessageHandler{
		reservations: reservations,
		checkouts:    checkouts,
		logger:       logger,
	}
}

// HandleCartCommand processes one CartCommands message. Business rejections are
// logged and acknowledged; only malformed messages and system failures return an error.
func (h *KafkaMessageHandler) HandleCartCommand(ctx context.Context, msg kafkago.Message) error {
	msgCtx := h.extractTraceContext(ctx, msg.Headers)

	h.logger.Debug("Cart command received",
		zap.ByteString("key", msg.Key),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	var cmd CartCommand
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		h.logger.Error("Invalid JSON in cart command",
			zap.Error(err),
			zap.ByteString("raw_value", msg.Value),
		)
		return err
	}

	switch cmd.Type {
	case CommandReserve:
		return h.handleReserve(msgCtx, cmd)
	case CommandCheckout:
		return h.handleCheckout(msgCtx, cmd)
	default:
		err := fmt.Errorf("unknown cart command %q", cmd.Type)
		h.logger.Error("Unsupported cart command", zap.Error(err), zap.Int64("offset", msg.Offset))
		return err
	}
}

func (h *KafkaMessageHandler) handleReserve(ctx context.Context, cmd CartCommand) error {
	result, err := h.reservations.Reserve(ctx, ReserveRequest{
		VariantID: cmd.VariantID,
		Quantity:  cmd.Quantity,
		UserID:    cmd.UserID,
	})
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidQuantity) {
		h.logger.Warn("Cart command rejected", zap.Error(err), zap.Int64("variantId", cmd.VariantID))
		return nil
	}
	if err != nil {
		return err
	}
	if !result.Success {
		h.logger.Info("Cart command rejected", zap.String("reason", result.Message), zap.Int64("variantId", cmd.VariantID))
	}
	return nil
}

func (h *KafkaMessageHandler) handleCheckout(ctx context.Context, cmd CartCommand) error {
	_, err := h.checkouts.Checkout(ctx, cmd.UserID)
	if errors.Is(err, domain.ErrEmptyCart) {
		return nil
	}
	return err
}

// extractTraceContext extracts OpenTelemetry trace context from Kafka message headers
func (h *KafkaMessageHandler) extractTraceContext(ctx context.Context, headers []kafkago.Header) context.Context {
	propagator := otel.GetTextMapPropagator()
	carrier := propagation.MapCarrier{}

	for _, header := range headers {
		carrier[string(header.Key)] = string(header.Value)
	}

	return propagator.Extract(ctx, carrier)
}
