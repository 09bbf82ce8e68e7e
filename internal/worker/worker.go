package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/joao-fontenele/orderplaced-pipeline/internal/config"
	"github.com/joao-fontenele/orderplaced-pipeline/internal/deadletter"
	"github.com/joao-fontenele/orderplaced-pipeline/internal/dedup"
	"github.com/joao-fontenele/orderplaced-pipeline/internal/messaging"
	"github.com/joao-fontenele/orderplaced-pipeline/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Run wires one consumer group around handler and blocks until ctx is
// cancelled. Postgres and Redis are attached only when configured.
func Run(ctx context.Context, name string, cfg config.Worker, handler messaging.EventHandler, logger *slog.Logger) error {
	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.OTLPEndpoint, name, cfg.Telemetry.ServiceVersion)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() { _ = shutdownTracer(context.WithoutCancel(ctx)) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(name, cfg.Telemetry.ServiceVersion)
	if err != nil {
		return fmt.Errorf("init meter: %w", err)
	}
	defer func() { _ = shutdownMeter(context.WithoutCancel(ctx)) }()

	var opts []messaging.RunnerOption

	if cfg.PostgresURL != "" {
		db, err := telemetry.OpenDB(ctx, cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("open dead-letter store: %w", err)
		}
		defer func() { _ = db.Close() }()

		opts = append(opts, messaging.WithDeadLetterSink(deadletter.NewRepository(db)))
		logger.Info("dead-letter store enabled")
	}

	if cfg.RedisURL != "" {
		client, err := dedup.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect deduplication store: %w", err)
		}
		defer func() { _ = client.Close() }()

		opts = append(opts, messaging.WithDeduplicator(dedup.NewRedisDeduper(client, cfg.DedupTTL)))
		logger.Info("deduplication enabled", "ttl", cfg.DedupTTL)
	}

	reader := messaging.NewGroupReader(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.GroupID,
		messaging.WithCommitInterval(cfg.CommitInterval),
	)

	runner := messaging.NewRunner(reader, messaging.RunnerConfig{
		Group:             cfg.GroupID,
		Topic:             cfg.Kafka.Topic,
		FetchRetryBackoff: cfg.FetchRetryBackoff,
	}, handler, logger, opts...)

	server := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      NewMux(runner, metricsHandler),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Info("starting worker", "brokers", cfg.Kafka.Brokers, "group", cfg.GroupID, "metrics_port", cfg.MetricsPort)
	return Serve(ctx, runner, server, logger)
}

// Serve runs the consumer loop and the metrics server side by side. When
// either stops the other is shut down.
func Serve(ctx context.Context, runner *messaging.Runner, server *http.Server, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runner.Run(gctx)
	})

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// NewMux serves /metrics and a /healthz that reports the runner's state.
func NewMux(runner *messaging.Runner, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		state := runner.State()
		switch state {
		case messaging.StateStarting, messaging.StatePolling, messaging.StateProcessing:
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_, _ = w.Write([]byte(state.String()))
	})

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	return r
}
