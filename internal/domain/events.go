package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrMalformedEvent = errors.New("malformed order placed event")

// OrderPlacedEvent is published once per accepted order and consumed
// independently by every subscribed consumer group.
type OrderPlacedEvent struct {
	OrderID   string      `json:"order_id"`
	UserID    string      `json:"user_id"`
	Total     float64     `json:"total"`
	Items     []OrderItem `json:"items"`
	Timestamp time.Time   `json:"timestamp"`
	PaymentID string      `json:"payment_id"`
}

// NewOrderPlacedEvent builds the event for an accepted request. Items are copied
// so the event does not share backing storage with the request.
func NewOrderPlacedEvent(orderID, paymentID string, req PlaceOrderRequest, at time.Time) OrderPlacedEvent {
	items := make([]OrderItem, len(req.Items))
	copy(items, req.Items)

	return OrderPlacedEvent{
		OrderID:   orderID,
		UserID:    req.UserID,
		Total:     req.Total,
		Items:     items,
		Timestamp: at.UTC(),
		PaymentID: paymentID,
	}
}

func EncodeOrderPlacedEvent(event OrderPlacedEvent) ([]byte, error) {
	if event.Items == nil {
		event.Items = []OrderItem{}
	}
	return json.Marshal(event)
}

func DecodeOrderPlacedEvent(payload []byte) (OrderPlacedEvent, error) {
	var event OrderPlacedEvent

	if len(bytes.TrimSpace(payload)) == 0 {
		return event, fmt.Errorf("%w: empty payload", ErrMalformedEvent)
	}

	if err := json.Unmarshal(payload, &event); err != nil {
		return OrderPlacedEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	if event.OrderID == "" {
		return OrderPlacedEvent{}, fmt.Errorf("%w: missing order_id", ErrMalformedEvent)
	}
	if event.PaymentID == "" {
		return OrderPlacedEvent{}, fmt.Errorf("%w: missing payment_id", ErrMalformedEvent)
	}
	if event.Total < 0 {
		return OrderPlacedEvent{}, fmt.Errorf("%w: negative total", ErrMalformedEvent)
	}
	if err := validateItems(event.Items); err != nil {
		return OrderPlacedEvent{}, fmt.Errorf("%w: %s", ErrMalformedEvent, err)
	}
	if event.Items == nil {
		event.Items = []OrderItem{}
	}

	return event, nil
}
