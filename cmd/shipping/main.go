package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joao-fontenele/orderplaced-pipeline/internal/config"
	"github.com/joao-fontenele/orderplaced-pipeline/internal/shipping"
	"github.com/joao-fontenele/orderplaced-pipeline/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadWorker(config.WorkerDefaults{
		GroupID:      "shipping-worker",
		HandlerDelay: shipping.DefaultPreparationDelay,
		MetricsPort:  "9092",
	})
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := shipping.NewHandler(cfg.HandlerDelay, logger)

	if err := worker.Run(ctx, "shipping-worker", cfg, handler, logger); err != nil {
		logger.Error("worker error", "error", err)
		os.Exit(1)
	}
	logger.Info("consumer stopped")
}
