package config

import (
	"slices"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestLoadAPI(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadAPI()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !slices.Equal(cfg.Kafka.Brokers, []string{"localhost:9092"}) {
			t.Errorf("unexpected brokers: %v", cfg.Kafka.Brokers)
		}
		if cfg.Kafka.Topic != "order.placed" {
			t.Errorf("unexpected topic: %s", cfg.Kafka.Topic)
		}
		if cfg.RequiredAcks != kafka.RequireAll {
			t.Errorf("expected RequireAll, got %v", cfg.RequiredAcks)
		}
		if !cfg.Idempotent {
			t.Error("expected idempotence enabled by default")
		}
		if cfg.Retries != 3 || cfg.RetryBackoff != 100*time.Millisecond {
			t.Errorf("unexpected retry policy: %d / %v", cfg.Retries, cfg.RetryBackoff)
		}
		if cfg.ProcessingDelay != time.Second || cfg.Port != "8080" {
			t.Errorf("unexpected api settings: %+v", cfg)
		}
		if cfg.Telemetry.OTLPEndpoint != "localhost:4317" {
			t.Errorf("unexpected otlp endpoint: %s", cfg.Telemetry.OTLPEndpoint)
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
		t.Setenv("KAFKA_ORDER_PLACED_TOPIC", "orders")
		t.Setenv("KAFKA_REQUIRED_ACKS", "one")
		t.Setenv("KAFKA_IDEMPOTENT", "false")
		t.Setenv("KAFKA_RETRIES", "5")
		t.Setenv("KAFKA_RETRY_BACKOFF", "250ms")
		t.Setenv("PROCESSING_DELAY", "0s")
		t.Setenv("PORT", "9000")

		cfg, err := LoadAPI()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !slices.Equal(cfg.Kafka.Brokers, []string{"k1:9092", "k2:9092"}) {
			t.Errorf("unexpected brokers: %v", cfg.Kafka.Brokers)
		}
		if cfg.Kafka.Topic != "orders" || cfg.RequiredAcks != kafka.RequireOne || cfg.Idempotent {
			t.Errorf("unexpected kafka settings: %+v", cfg)
		}
		if cfg.Retries != 5 || cfg.RetryBackoff != 250*time.Millisecond {
			t.Errorf("unexpected retry policy: %d / %v", cfg.Retries, cfg.RetryBackoff)
		}
		if cfg.ProcessingDelay != 0 || cfg.Port != "9000" {
			t.Errorf("unexpected api settings: %+v", cfg)
		}
	})

	invalid := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown acks", key: "KAFKA_REQUIRED_ACKS", value: "most"},
		{name: "negative retries", key: "KAFKA_RETRIES", value: "-1"},
		{name: "no brokers", key: "KAFKA_BROKERS", value: " , "},
		{name: "zero write timeout", key: "KAFKA_WRITE_TIMEOUT", value: "0s"},
	}
	for _, tt := range invalid {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := LoadAPI(); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestAPI_PublishBudget(t *testing.T) {
	cfg := API{Retries: 3, RetryBackoff: 100 * time.Millisecond, WriteTimeout: 10 * time.Second}

	if got, want := cfg.PublishBudget(), 40*time.Second+300*time.Millisecond; got != want {
		t.Errorf("expected %v, got %v", want, got)
	}

	cfg.Retries = 0
	if got := cfg.PublishBudget(); got != 10*time.Second {
		t.Errorf("expected a single attempt of 10s, got %v", got)
	}
}

func TestLoadWorker(t *testing.T) {
	defaults := WorkerDefaults{GroupID: "shipping-worker", HandlerDelay: 500 * time.Millisecond, MetricsPort: "9092"}

	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadWorker(defaults)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.GroupID != "shipping-worker" || cfg.HandlerDelay != 500*time.Millisecond || cfg.MetricsPort != "9092" {
			t.Errorf("worker defaults not applied: %+v", cfg)
		}
		if cfg.CommitInterval != time.Second || cfg.FetchRetryBackoff != time.Second {
			t.Errorf("unexpected consumer timings: %+v", cfg)
		}
		if cfg.PostgresURL != "" || cfg.RedisURL != "" {
			t.Errorf("optional stores should be disabled: %+v", cfg)
		}
		if cfg.DedupTTL != 24*time.Hour {
			t.Errorf("unexpected dedup ttl: %v", cfg.DedupTTL)
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("KAFKA_GROUP_ID", "shipping-replay")
		t.Setenv("HANDLER_DELAY", "1ms")
		t.Setenv("REDIS_URL", "redis://localhost:6379/0")
		t.Setenv("DEDUP_TTL", "1h")

		cfg, err := LoadWorker(defaults)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.GroupID != "shipping-replay" || cfg.HandlerDelay != time.Millisecond {
			t.Errorf("overrides not applied: %+v", cfg)
		}
		if cfg.RedisURL != "redis://localhost:6379/0" || cfg.DedupTTL != time.Hour {
			t.Errorf("dedup settings not applied: %+v", cfg)
		}
	})

	t.Run("rejects blank group", func(t *testing.T) {
		t.Setenv("KAFKA_GROUP_ID", " ")
		if _, err := LoadWorker(defaults); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestLoadMigrate(t *testing.T) {
	t.Run("requires postgres url", func(t *testing.T) {
		t.Setenv("POSTGRES_URL", "")
		if _, err := LoadMigrate(); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("defaults migrations path", func(t *testing.T) {
		t.Setenv("POSTGRES_URL", "postgres://localhost/orders")

		cfg, err := LoadMigrate()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.MigrationsPath != "file://migrations" {
			t.Errorf("unexpected migrations path: %s", cfg.MigrationsPath)
		}
	})
}

func TestParseRequiredAcks(t *testing.T) {
	tests := []struct {
		in   string
		want kafka.RequiredAcks
	}{
		{in: "all", want: kafka.RequireAll},
		{in: "-1", want: kafka.RequireAll},
		{in: "ONE", want: kafka.RequireOne},
		{in: "1", want: kafka.RequireOne},
		{in: "none", want: kafka.RequireNone},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRequiredAcks(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
