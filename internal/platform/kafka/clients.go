package kafka

import (
	"reservationservice/internal/config"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// NewConsumer builds a traced group reader for the cart command topic.
func NewConsumer(broker string) (Consumer, error) {
	baseReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   config.CartCommandsTopic,
		GroupID: config.GroupID,
	})
	return otelkafka.NewReader(baseReader)
}

// NewProducer builds a traced writer for the inventory events topic.
func NewProducer(broker string, tp trace.TracerProvider) (Producer, error) {
	baseWriter := &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        config.InventoryEventsTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: config.BatchTimeout,
		BatchSize:    config.BatchSize,
	}

	return otelkafka.NewWriter(baseWriter,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				semconv.MessagingDestinationNameKey.String(config.InventoryEventsTopic),
				attribute.String("messaging.kafka.client_id", config.ServiceName),
			},
		),
	)
}
