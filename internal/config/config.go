package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/viper"
)

// Kafka holds the settings shared by the orders API and both workers.
type Kafka struct {
	Brokers []string
	Topic   string
}

type Telemetry struct {
	OTLPEndpoint   string
	ServiceVersion string
}

type API struct {
	Kafka     Kafka
	Telemetry Telemetry

	RequiredAcks    kafka.RequiredAcks
	Idempotent      bool
	Retries         int
	RetryBackoff    time.Duration
	WriteTimeout    time.Duration
	ProcessingDelay time.Duration
	Port            string
}

type Worker struct {
	Kafka     Kafka
	Telemetry Telemetry

	GroupID           string
	CommitInterval    time.Duration
	FetchRetryBackoff time.Duration
	HandlerDelay      time.Duration
	MetricsPort       string

	// PostgresURL and RedisURL are optional. Empty disables the dead-letter
	// store and deduplication respectively.
	PostgresURL string
	RedisURL    string
	DedupTTL    time.Duration
}

// WorkerDefaults are the per-worker values that differ between inventory and
// shipping.
type WorkerDefaults struct {
	GroupID      string
	HandlerDelay time.Duration
	MetricsPort  string
}

type Migrate struct {
	PostgresURL    string
	MigrationsPath string
}

// LoadAPI reads the orders API settings from the environment and an optional
// .env file in the working directory.
func LoadAPI() (API, error) {
	v, err := newViper()
	if err != nil {
		return API{}, err
	}

	v.SetDefault("KAFKA_REQUIRED_ACKS", "all")
	v.SetDefault("KAFKA_IDEMPOTENT", true)
	v.SetDefault("KAFKA_RETRIES", 3)
	v.SetDefault("KAFKA_RETRY_BACKOFF", 100*time.Millisecond)
	v.SetDefault("KAFKA_WRITE_TIMEOUT", 10*time.Second)
	v.SetDefault("PROCESSING_DELAY", time.Second)
	v.SetDefault("PORT", "8080")

	acks, err := ParseRequiredAcks(v.GetString("KAFKA_REQUIRED_ACKS"))
	if err != nil {
		return API{}, err
	}

	cfg := API{
		Kafka:           kafkaConfig(v),
		Telemetry:       telemetryConfig(v),
		RequiredAcks:    acks,
		Idempotent:      v.GetBool("KAFKA_IDEMPOTENT"),
		Retries:         v.GetInt("KAFKA_RETRIES"),
		RetryBackoff:    v.GetDuration("KAFKA_RETRY_BACKOFF"),
		WriteTimeout:    v.GetDuration("KAFKA_WRITE_TIMEOUT"),
		ProcessingDelay: v.GetDuration("PROCESSING_DELAY"),
		Port:            v.GetString("PORT"),
	}

	if cfg.Retries < 0 {
		return API{}, fmt.Errorf("KAFKA_RETRIES must not be negative, got %d", cfg.Retries)
	}
	if cfg.WriteTimeout <= 0 {
		return API{}, errors.New("KAFKA_WRITE_TIMEOUT must be positive")
	}
	if err := cfg.Kafka.validate(); err != nil {
		return API{}, err
	}

	return cfg, nil
}

// PublishBudget is the longest a publish can take: every attempt runs to its
// write timeout and every retry waits its backoff.
func (c API) PublishBudget() time.Duration {
	attempts := time.Duration(c.Retries + 1)
	return attempts*c.WriteTimeout + time.Duration(c.Retries)*c.RetryBackoff
}

func LoadWorker(defaults WorkerDefaults) (Worker, error) {
	v, err := newViper()
	if err != nil {
		return Worker{}, err
	}

	v.SetDefault("KAFKA_GROUP_ID", defaults.GroupID)
	v.SetDefault("KAFKA_COMMIT_INTERVAL", time.Second)
	v.SetDefault("KAFKA_FETCH_RETRY_BACKOFF", time.Second)
	v.SetDefault("HANDLER_DELAY", defaults.HandlerDelay)
	v.SetDefault("METRICS_PORT", defaults.MetricsPort)
	v.SetDefault("POSTGRES_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("DEDUP_TTL", 24*time.Hour)

	cfg := Worker{
		Kafka:             kafkaConfig(v),
		Telemetry:         telemetryConfig(v),
		GroupID:           v.GetString("KAFKA_GROUP_ID"),
		CommitInterval:    v.GetDuration("KAFKA_COMMIT_INTERVAL"),
		FetchRetryBackoff: v.GetDuration("KAFKA_FETCH_RETRY_BACKOFF"),
		HandlerDelay:      v.GetDuration("HANDLER_DELAY"),
		MetricsPort:       v.GetString("METRICS_PORT"),
		PostgresURL:       v.GetString("POSTGRES_URL"),
		RedisURL:          v.GetString("REDIS_URL"),
		DedupTTL:          v.GetDuration("DEDUP_TTL"),
	}

	if strings.TrimSpace(cfg.GroupID) == "" {
		return Worker{}, errors.New("KAFKA_GROUP_ID is required")
	}
	if cfg.DedupTTL <= 0 {
		return Worker{}, errors.New("DEDUP_TTL must be positive")
	}
	if err := cfg.Kafka.validate(); err != nil {
		return Worker{}, err
	}

	return cfg, nil
}

func LoadMigrate() (Migrate, error) {
	v, err := newViper()
	if err != nil {
		return Migrate{}, err
	}

	v.SetDefault("POSTGRES_URL", "")
	v.SetDefault("MIGRATIONS_PATH", "file://migrations")

	cfg := Migrate{
		PostgresURL:    v.GetString("POSTGRES_URL"),
		MigrationsPath: v.GetString("MIGRATIONS_PATH"),
	}
	if cfg.PostgresURL == "" {
		return Migrate{}, errors.New("POSTGRES_URL is required")
	}
	return cfg, nil
}

// ParseRequiredAcks maps all, one and none (or -1, 1, 0) to the writer's
// acknowledgement level.
func ParseRequiredAcks(s string) (kafka.RequiredAcks, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all", "-1":
		return kafka.RequireAll, nil
	case "one", "1", "leader":
		return kafka.RequireOne, nil
	case "none", "0":
		return kafka.RequireNone, nil
	default:
		return 0, fmt.Errorf("unknown KAFKA_REQUIRED_ACKS value %q", s)
	}
}

func newViper() (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_ORDER_PLACED_TOPIC", "order.placed")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("SERVICE_VERSION", "0.1.0")

	return v, nil
}

func kafkaConfig(v *viper.Viper) Kafka {
	var brokers []string
	for _, b := range strings.Split(v.GetString("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	return Kafka{
		Brokers: brokers,
		Topic:   v.GetString("KAFKA_ORDER_PLACED_TOPIC"),
	}
}

func telemetryConfig(v *viper.Viper) Telemetry {
	return Telemetry{
		OTLPEndpoint:   v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceVersion: v.GetString("SERVICE_VERSION"),
	}
}

func (k Kafka) validate() error {
	if len(k.Brokers) == 0 {
		return errors.New("KAFKA_BROKERS must list at least one broker")
	}
	if strings.TrimSpace(k.Topic) == "" {
		return errors.New("KAFKA_ORDER_PLACED_TOPIC is required")
	}
	return nil
}
