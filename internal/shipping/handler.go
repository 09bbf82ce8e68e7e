package shipping

import (
	"context"
	"log/slog"
	"time"

	"github.com/joao-fontenele/orderplaced-pipeline/internal/domain"
)

// DefaultPreparationDelay is spent once per order, regardless of its size.
const DefaultPreparationDelay = 500 * time.Millisecond

type Handler struct {
	preparationDelay time.Duration
	logger           *slog.Logger
}

func NewHandler(preparationDelay time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		preparationDelay: preparationDelay,
		logger:           logger,
	}
}

func (h *Handler) Handle(ctx context.Context, event domain.OrderPlacedEvent) error {
	for _, item := range event.Items {
		h.logger.Info("packing item", "order_id", event.OrderID, "product_id", item.ProductID, "quantity", item.Quantity)
	}

	if h.preparationDelay > 0 {
		t := time.NewTimer(h.preparationDelay)
		defer t.Stop()

		select {
		case <-ctx.Done():
			h.logger.Warn("shipment preparation interrupted", "order_id", event.OrderID)
			return ctx.Err()
		case <-t.C:
		}
	}

	h.logger.Info("order shipping prepared", "order_id", event.OrderID, "user_id", event.UserID)
	return nil
}
