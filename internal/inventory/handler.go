package inventory

import (
	"context"
	"log/slog"
	"time"

	"github.com/joao-fontenele/orderplaced-pipeline/internal/domain"
)

// DefaultPerItemDelay is how long updating stock takes for one order line.
const DefaultPerItemDelay = 125 * time.Millisecond

type Handler struct {
	perItemDelay time.Duration
	logger       *slog.Logger
}

func NewHandler(perItemDelay time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		perItemDelay: perItemDelay,
		logger:       logger,
	}
}

// Handle adjusts stock for every item of the order. It returns ctx.Err() if
// cancelled part way through.
func (h *Handler) Handle(ctx context.Context, event domain.OrderPlacedEvent) error {
	h.logger.Info("updating inventory", "order_id", event.OrderID, "items", len(event.Items))

	for _, item := range event.Items {
		h.logger.Info("adjusting stock", "order_id", event.OrderID, "product_id", item.ProductID, "quantity", item.Quantity)
		if err := sleep(ctx, h.perItemDelay); err != nil {
			h.logger.Warn("inventory update interrupted", "order_id", event.OrderID, "product_id", item.ProductID)
			return err
		}
	}

	h.logger.Info("order inventory updated", "order_id", event.OrderID)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
