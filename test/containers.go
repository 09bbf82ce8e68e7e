package test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/joao-fontenele/orderplaced-pipeline/internal/telemetry"
)

// SetupPostgres starts a migrated Postgres container for the test and returns
// its connection string. The container is removed when the test ends.
func SetupPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("pipeline"),
		postgres.WithUsername("pipeline"),
		postgres.WithPassword("pipeline"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { terminate(t, container) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}

	if err := runMigrations(connStr); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return connStr
}

func runMigrations(connStr string) error {
	m, err := migrate.New(migrationsSource(), connStr)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// migrationsSource points at the repository's migrations directory regardless
// of the working directory go test runs in.
func migrationsSource() string {
	_, filename, _, _ := runtime.Caller(0)
	root := filepath.Dir(filepath.Dir(filename))
	return "file://" + filepath.Join(root, "migrations")
}

// SetupKafka starts a single-node Kafka container and returns its brokers.
func SetupKafka(ctx context.Context, t *testing.T) []string {
	t.Helper()

	container, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.8.0",
		kafka.WithClusterID("orderplaced-test"),
	)
	if err != nil {
		t.Fatalf("start kafka container: %v", err)
	}
	t.Cleanup(func() { terminate(t, container) })

	brokers, err := container.Brokers(ctx)
	if err != nil {
		t.Fatalf("kafka brokers: %v", err)
	}

	return brokers
}

func terminate(t *testing.T, container testcontainers.Container) {
	if err := testcontainers.TerminateContainer(container); err != nil {
		t.Logf("terminate container: %v", err)
	}
}

// OpenDeadLetterDB opens an instrumented connection to the migrated database.
func OpenDeadLetterDB(ctx context.Context, t *testing.T, connStr string) *sql.DB {
	t.Helper()

	db, err := telemetry.OpenDB(ctx, connStr)
	if err != nil {
		t.Fatalf("open dead-letter database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}
