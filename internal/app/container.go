package app

import (
	"context"
	"fmt"
	"os"

	"reservationservice/internal/config"
	"reservationservice/internal/httpapi"
	"reservationservice/internal/inventory"
	"reservationservice/internal/platform/kafka"
	"reservationservice/internal/platform/observability"
	"reservationservice/internal/pricing"
	"reservationservice/internal/reclaim"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Container holds expensive-to-create singleton resources and dependencies
type Container struct {
	config  *config.Config
	logger  *zap.Logger
	tracer  observability.Tracer
	metrics *observability.Metrics

	pool            *pgxpool.Pool
	store           backend
	messageConsumer kafka.Consumer
	messageProducer kafka.Producer
	otelShutdowns   []func(context.Context) error

	server          *httpapi.Server
	scheduler       *reclaim.Scheduler
	consumerService inventory.ConsumerService
}

// NewContainer creates and initializes all infrastructure components
func NewContainer(ctx context.Context) (*Container, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	container := &Container{
		config: cfg,
		logger: observability.NewLogger(false),
	}

	container.setupObservability(ctx)

	if err := container.setupStorage(ctx); err != nil {
		container.Shutdown(ctx)
		return nil, err
	}

	if err := container.setupKafka(); err != nil {
		container.Shutdown(ctx)
		return nil, err
	}

	if err := container.setupServices(); err != nil {
		container.Shutdown(ctx)
		return nil, err
	}

	return container, nil
}

// setupObservability configures OpenTelemetry logging, tracing and metrics.
// Exporter failures are logged and the service keeps running without them.
func (c *Container) setupObservability(ctx context.Context) {
	observability.SetupPropagation()

	if c.config.TelemetryEnabled() {
		otelLogShutdown, err := observability.SetupLoggingSDK(ctx, c.config)
		if err != nil {
			c.logger.Error("Failed to setup OpenTelemetry logging", zap.Error(err))
		}
		c.otelShutdowns = append(c.otelShutdowns, otelLogShutdown)

		_, otelTraceShutdown, err := observability.SetupTracingSDK(ctx, c.config)
		if err != nil {
			c.logger.Error("Failed to setup OpenTelemetry tracing", zap.Error(err))
		}
		c.otelShutdowns = append(c.otelShutdowns, otelTraceShutdown)

		otelMetricShutdown, err := observability.SetupMetricsSDK(ctx, c.config)
		if err != nil {
			c.logger.Error("Failed to setup OpenTelemetry metrics", zap.Error(err))
		}
		c.otelShutdowns = append(c.otelShutdowns, otelMetricShutdown)

		c.logger = observability.NewLogger(true)
		c.logger.Info("Logger re-initialized with OpenTelemetry bridge")
	} else {
		c.logger.Info("OTEL_ENDPOINT not set, telemetry export disabled")
	}

	c.tracer = otel.Tracer(config.ServiceName)

	metrics, err := observability.NewMetrics(otel.Meter(config.ServiceName))
	if err != nil {
		c.logger.Error("Failed to register metrics", zap.Error(err))
		metrics = observability.NoopMetrics()
	}
	c.metrics = metrics
}

// setupKafka connects the cart command consumer and the event producer when a broker is configured.
func (c *Container) setupKafka() error {
	if !c.config.KafkaEnabled() {
		c.logger.Info("KAFKA_BROKER not set, messaging disabled")
		return nil
	}

	consumer, err := kafka.NewConsumer(c.config.KafkaBroker)
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	c.messageConsumer = consumer

	producer, err := kafka.NewProducer(c.config.KafkaBroker, otel.GetTracerProvider())
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}
	c.messageProducer = producer

	c.logger.Info("Kafka messaging enabled",
		zap.String("broker", c.config.KafkaBroker),
		zap.String("commandsTopic", config.CartCommandsTopic),
		zap.String("eventsTopic", config.InventoryEventsTopic),
	)
	return nil
}

// setupServices builds the pricing engine, the reservation core and its outer surfaces.
func (c *Container) setupServices() error {
	rules, err := c.loadRules()
	if err != nil {
		return err
	}

	engine, err := pricing.NewEngine(c.store, c.tracer, rules)
	if err != nil {
		return fmt.Errorf("failed to create pricing engine: %w", err)
	}

	var publisher inventory.EventPublisher = inventory.NoopPublisher{}
	if c.messageProducer != nil {
		publisher = inventory.NewKafkaPublisher(c.messageProducer)
	}

	reservations := inventory.NewReservationService(c.store, engine, c.store, publisher,
		c.logger, c.tracer, c.metrics, c.config.ReservationTTL, inventory.SystemClock)
	checkouts := inventory.NewCheckoutService(c.store, publisher,
		c.logger, c.tracer, c.metrics, inventory.SystemClock)

	reclaimer := reclaim.NewReclaimer(c.store, publisher, c.logger, c.tracer, c.metrics, inventory.SystemClock)
	c.scheduler = reclaim.NewScheduler(reclaimer, c.logger, c.metrics, c.config.ReclaimInterval, c.config.ReclaimTimeout)

	c.server = httpapi.NewServer(reservations, checkouts, engine, c.logger, c.tracer, c.config.RateLimitPerMinute)

	if c.messageConsumer != nil {
		handler := inventory.NewMessageHandler(reservations, checkouts, c.logger)
		c.consumerService = inventory.NewConsumerService(c.messageConsumer, handler, c.logger)
	}
	return nil
}

// loadRules returns nil (the built-in rules) unless PRICING_RULES_FILE is set.
func (c *Container) loadRules() ([]pricing.Rule, error) {
	if c.config.PricingRulesFile == "" {
		return nil, nil
	}
	rules, err := pricing.LoadRules(c.config.PricingRulesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load pricing rules: %w", err)
	}
	c.logger.Info("Pricing rules loaded",
		zap.String("file", c.config.PricingRulesFile),
		zap.Int("count", len(rules)),
	)
	return rules, nil
}

// Shutdown gracefully shuts down all infrastructure components
func (c *Container) Shutdown(ctx context.Context) {
	c.logger.Info("Shutting down infrastructure...")

	if c.messageConsumer != nil {
		if err := c.messageConsumer.Close(); err != nil {
			c.logger.Error("Failed to close message consumer", zap.Error(err))
		}
	}

	if c.messageProducer != nil {
		if err := c.messageProducer.Close(); err != nil {
			c.logger.Error("Failed to close message producer", zap.Error(err))
		}
	}

	if c.pool != nil {
		c.pool.Close()
	}

	c.logger.Info("Infrastructure shutdown complete")

	for i := len(c.otelShutdowns) - 1; i >= 0; i-- {
		if err := c.otelShutdowns[i](ctx); err != nil {
			c.logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
		}
	}

	if err := c.logger.Sync(); err != nil {
		// Can't log this error since logger might be closed
		fmt.Fprintf(os.Stderr, "Failed to sync logger: %v\n", err)
	}
}

func (c *Container) Logger() observability.Logger { return c.logger }
