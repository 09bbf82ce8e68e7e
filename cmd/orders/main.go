package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/orderplaced-pipeline/internal/config"
	"github.com/joao-fontenele/orderplaced-pipeline/internal/messaging"
	"github.com/joao-fontenele/orderplaced-pipeline/internal/orders"
	"github.com/joao-fontenele/orderplaced-pipeline/internal/telemetry"
)

const serviceName = "orders-api"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadAPI()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.OTLPEndpoint, serviceName, cfg.Telemetry.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, cfg.Telemetry.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	producer := messaging.NewProducer(messaging.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.Topic,
		RequiredAcks: cfg.RequiredAcks,
		Idempotent:   cfg.Idempotent,
		Retries:      cfg.Retries,
		RetryBackoff: cfg.RetryBackoff,
		WriteTimeout: cfg.WriteTimeout,
	})
	defer func() { _ = producer.Close() }()

	service := orders.NewService(producer, cfg.ProcessingDelay, logger,
		orders.WithPublishTimeout(cfg.PublishBudget()),
	)
	handler := orders.NewHandler(service, logger)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(orders.NewRouter(handler, metricsHandler), serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
			otelhttp.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/metrics" && r.URL.Path != "/healthz"
			}),
		),
		ReadTimeout: 10 * time.Second,
		// Leaves room to write the 500 after the publish budget runs out.
		WriteTimeout: cfg.ProcessingDelay + cfg.PublishBudget() + 5*time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting orders api", "port", cfg.Port, "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
