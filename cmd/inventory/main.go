package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joao-fontenele/orderplaced-pipeline/internal/config"
	"github.com/joao-fontenele/orderplaced-pipeline/internal/inventory"
	"github.com/joao-fontenele/orderplaced-pipeline/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadWorker(config.WorkerDefaults{
		GroupID:      "inventory-worker",
		HandlerDelay: inventory.DefaultPerItemDelay,
		MetricsPort:  "9091",
	})
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := inventory.NewHandler(cfg.HandlerDelay, logger)

	if err := worker.Run(ctx, "inventory-worker", cfg, handler, logger); err != nil {
		logger.Error("worker error", "error", err)
		os.Exit(1)
	}
	logger.Info("consumer stopped")
}
