package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"
)

const (
	ServiceName    = "reservation-service"
	ServiceVersion = "0.1.0"
)

const (
	CartCommandsTopic    = "CartCommands"
	InventoryEventsTopic = "InventoryEvents"
	GroupID              = "reservation-service-group"
	BatchTimeout         = 10 * time.Millisecond
	BatchSize            = 100
)

const (
	LogsPath       = "/otlp/v1/logs"   // Grafana Cloud OTLP path
	TracesPath     = "/otlp/v1/traces" // Grafana Cloud OTLP path
	MetricsPath    = "/otlp/v1/metrics"
	ExportTimeout  = 30 * time.Second
	MaxQueueSize   = 2048
	MetricInterval = 15 * time.Second
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

const (
	defaultHTTPAddr        = ":8080"
	defaultDBMaxConns      = 50
	defaultReservationTTL  = 15 * time.Minute
	defaultReclaimInterval = 60 * time.Second
	defaultReclaimTimeout  = 10 * time.Second
	defaultRateLimit       = 120
)

// Config holds environment-specific configuration
type Config struct {
	HTTPAddr string

	StorageDriver string
	DatabaseURL   string
	DBMaxConns    int32

	ReservationTTL  time.Duration
	ReclaimInterval time.Duration
	ReclaimTimeout  time.Duration

	PricingRulesFile string

	// Messaging is disabled when KafkaBroker is empty.
	KafkaBroker string

	// Exporters are disabled when OtelEndpoint is empty.
	OtelEndpoint   string
	OtelAuthHeader string

	RateLimitPerMinute int
}

// KafkaEnabled reports whether a broker was configured.
func (c *Config) KafkaEnabled() bool { return c.KafkaBroker != "" }

// TelemetryEnabled reports whether OTLP exporters should be started.
func (c *Config) TelemetryEnabled() bool { return c.OtelEndpoint != "" }

// LoadConfig loads configuration from environment variables with validation
func LoadConfig() (*Config, error) {
	return loadFrom(os.Getenv)
}

func loadFrom(getenv func(string) string) (*Config, error) {
	config := &Config{
		HTTPAddr:         getenv("HTTP_ADDR"),
		StorageDriver:    getenv("STORAGE_DRIVER"),
		DatabaseURL:      getenv("DATABASE_URL"),
		PricingRulesFile: getenv("PRICING_RULES_FILE"),
		KafkaBroker:      getenv("KAFKA_BROKER"),
		OtelEndpoint:     getenv("OTEL_ENDPOINT"),
		OtelAuthHeader:   getenv("OTEL_AUTH_HEADER"),
	}

	if config.HTTPAddr == "" {
		config.HTTPAddr = defaultHTTPAddr
	}
	if config.StorageDriver == "" {
		config.StorageDriver = StorageMemory
	}

	var err error
	if config.ReservationTTL, err = durationVar(getenv, "RESERVATION_TTL", defaultReservationTTL); err != nil {
		return nil, err
	}
	if config.ReclaimInterval, err = durationVar(getenv, "RECLAIM_INTERVAL", defaultReclaimInterval); err != nil {
		return nil, err
	}
	if config.ReclaimTimeout, err = durationVar(getenv, "RECLAIM_TIMEOUT", defaultReclaimTimeout); err != nil {
		return nil, err
	}

	maxConns, err := intVar(getenv, "DB_MAX_CONNS", defaultDBMaxConns)
	if err != nil {
		return nil, err
	}
	if maxConns > math.MaxInt32 {
		return nil, fmt.Errorf("DB_MAX_CONNS %d exceeds %d", maxConns, math.MaxInt32)
	}
	config.DBMaxConns = int32(maxConns)

	if config.RateLimitPerMinute, err = intVar(getenv, "RATE_LIMIT_PER_MINUTE", defaultRateLimit); err != nil {
		return nil, err
	}

	switch config.StorageDriver {
	case StorageMemory:
	case StoragePostgres:
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required when STORAGE_DRIVER=postgres")
		}
	default:
		return nil, fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StorageMemory, StoragePostgres, config.StorageDriver)
	}

	if config.ReservationTTL <= 0 {
		return nil, fmt.Errorf("RESERVATION_TTL must be positive")
	}
	if config.ReclaimInterval <= 0 {
		return nil, fmt.Errorf("RECLAIM_INTERVAL must be positive")
	}
	if config.OtelEndpoint != "" && config.OtelAuthHeader == "" {
		return nil, fmt.Errorf("OTEL_AUTH_HEADER environment variable is required when OTEL_ENDPOINT is set")
	}

	return config, nil
}

func durationVar(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s environment variable is not a duration: %w", key, err)
	}
	return d, nil
}

func intVar(getenv func(string) string, key string, def int) (int, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s environment variable is not an integer: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s environment variable must not be negative", key)
	}
	return n, nil
}
