package inventory_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"reservationservice/internal/domain"
	"reservationservice/internal/inventory"
	"reservationservice/internal/platform/observability"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func commandMessage(t *testing.T, cmd inventory.CartCommand) kafkago.Message {
	t.Helper()
	value, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	return kafkago.Message{Key: []byte(cmd.UserID), Value: value}
}

func TestMessageHandler_HandleCartCommand(t *testing.T) {
	f := newFixture(t, variant(1, 2, 1000))
	handler := inventory.NewMessageHandler(f.reservation, f.checkout, zap.NewNop())
	ctx := context.Background()

	reserve := inventory.CartCommand{Type: inventory.CommandReserve, VariantID: 1, Quantity: 2, UserID: "user_1"}
	if err := handler.HandleCartCommand(ctx, commandMessage(t, reserve)); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if n := len(f.store.Reservations()); n != 1 {
		t.Fatalf("Expected 1 reservation, got %d", n)
	}

	// Business rejections are acknowledged, not retried.
	soldOut := inventory.CartCommand{Type: inventory.CommandReserve, VariantID: 1, Quantity: 1, UserID: "user_2"}
	if err := handler.HandleCartCommand(ctx, commandMessage(t, soldOut)); err != nil {
		t.Errorf("Expected rejection to be acknowledged, got: %v", err)
	}
	unknown := inventory.CartCommand{Type: inventory.CommandReserve, VariantID: 42, Quantity: 1, UserID: "user_2"}
	if err := handler.HandleCartCommand(ctx, commandMessage(t, unknown)); err != nil {
		t.Errorf("Expected unknown variant to be acknowledged, got: %v", err)
	}

	checkout := inventory.CartCommand{Type: inventory.CommandCheckout, UserID: "user_1"}
	if err := handler.HandleCartCommand(ctx, commandMessage(t, checkout)); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if stock := f.stockOf(t, 1); stock != 0 {
		t.Errorf("Expected stock 0 after checkout, got %d", stock)
	}

	if err := handler.HandleCartCommand(ctx, commandMessage(t, checkout)); err != nil {
		t.Errorf("Expected empty cart to be acknowledged, got: %v", err)
	}
}

func TestMessageHandler_InvalidMessages(t *testing.T) {
	f := newFixture(t, variant(1, 2, 1000))
	handler := inventory.NewMessageHandler(f.reservation, f.checkout, zap.NewNop())

	if err := handler.HandleCartCommand(context.Background(), kafkago.Message{Value: []byte("{not json")}); err == nil {
		t.Error("Expected error for malformed JSON")
	}
	if err := handler.HandleCartCommand(context.Background(), commandMessage(t, inventory.CartCommand{Type: "refund"})); err == nil {
		t.Error("Expected error for unknown command type")
	}
}

type fakeProducer struct {
	messages []kafkago.Message
	err      error
}

func (p *fakeProducer) WriteMessage(_ context.Context, msg kafkago.Message) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func TestKafkaPublisher_Publish(t *testing.T) {
	producer := &fakeProducer{}
	pub := inventory.NewKafkaPublisher(producer)

	event := domain.CheckoutCompletedEvent{UserID: "user_1", ItemsSold: 2, TotalAmount: dec("1800"), OccurredAt: t0}
	if err := pub.Publish(context.Background(), event); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(producer.messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(producer.messages))
	}
	msg := producer.messages[0]
	if string(msg.Key) != "user_1" {
		t.Errorf("Expected key user_1, got %s", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != domain.EventCheckoutCompleted {
		t.Errorf("Expected event_type header, got %+v", msg.Headers)
	}

	var decoded domain.CheckoutCompletedEvent
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("Expected valid JSON payload, got: %v", err)
	}
	if !decoded.TotalAmount.Equal(dec("1800")) || decoded.ItemsSold != 2 {
		t.Errorf("Unexpected payload: %+v", decoded)
	}
}

func TestKafkaPublisher_ProducerError(t *testing.T) {
	pub := inventory.NewKafkaPublisher(&fakeProducer{err: errors.New("broker down")})
	if err := pub.Publish(context.Background(), domain.ReservationsReclaimedEvent{Count: 1}); err == nil {
		t.Error("Expected producer error to be returned")
	}
}

// queueConsumer serves queued messages, then blocks until the context ends.
type queueConsumer struct {
	mu       sync.Mutex
	messages []kafkago.Message
}

func (c *queueConsumer) ReadMessage(ctx context.Context) (*kafkago.Message, error) {
	c.mu.Lock()
	if len(c.messages) > 0 {
		msg := c.messages[0]
		c.messages = c.messages[1:]
		c.mu.Unlock()
		return &msg, nil
	}
	c.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *queueConsumer) Close() error { return nil }

func TestConsumerService_Start(t *testing.T) {
	f := newFixture(t, variant(1, 5, 1000))
	consumer := &queueConsumer{messages: []kafkago.Message{
		{Value: []byte("garbage")},
		commandMessage(t, inventory.CartCommand{Type: inventory.CommandReserve, VariantID: 1, Quantity: 2, UserID: "user_1"}),
		commandMessage(t, inventory.CartCommand{Type: inventory.CommandCheckout, UserID: "user_1"}),
	}}

	core, logs := observer.New(zapcore.InfoLevel)
	var logger observability.Logger = zap.New(core)

	handler := inventory.NewMessageHandler(f.reservation, f.checkout, zap.NewNop())
	service := inventory.NewConsumerService(consumer, handler, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Start(ctx) }()

	deadline := time.After(2 * time.Second)
	for f.stockOf(t, 1) != 3 {
		select {
		case <-deadline:
			t.Fatalf("Expected checkout to settle stock to 3, got %d", f.stockOf(t, 1))
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Expected clean shutdown, got: %v", err)
	}
	if n := logs.FilterMessage("Cart command failed").Len(); n != 1 {
		t.Errorf("Expected the malformed command to be logged once, got %d", n)
	}
}
