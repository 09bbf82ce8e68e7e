package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/orderplaced-pipeline/internal/domain"
)

const invalidRequestMessage = "the submitted request is not valid or empty"

type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.OrderPlacedEvent, error)
}

type Handler struct {
	placer OrderPlacer
	logger *slog.Logger
}

func NewHandler(placer OrderPlacer, logger *slog.Logger) *Handler {
	return &Handler{
		placer: placer,
		logger: logger,
	}
}

// HandlePlace answers 200 with no body once the event is durably queued. It
// says nothing about whether downstream consumers have processed it.
func (h *Handler) HandlePlace(w http.ResponseWriter, r *http.Request) {
	var req domain.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid request body", "error", err)
		h.writeError(w, http.StatusBadRequest, invalidRequestMessage)
		return
	}

	event, err := h.placer.PlaceOrder(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOrder) {
			h.logger.Warn("order rejected", "error", err, "user_id", req.UserID)
			h.writeError(w, http.StatusBadRequest, invalidRequestMessage)
			return
		}
		h.logger.Error("failed to place order", "error", err, "user_id", req.UserID)
		h.writeError(w, http.StatusInternalServerError, "failed to submit order")
		return
	}

	h.logger.Info("order accepted", "order_id", event.OrderID, "user_id", event.UserID)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
