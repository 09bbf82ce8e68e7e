package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrInvalidOrder = errors.New("invalid order")

type OrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// PlaceOrderRequest is the submission accepted by the orders API. It carries no
// identifiers: order and payment ids are assigned when the event is published.
type PlaceOrderRequest struct {
	UserID string      `json:"user_id"`
	Total  float64     `json:"total"`
	Items  []OrderItem `json:"items"`
}

func (r PlaceOrderRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidOrder)
	}
	if math.IsNaN(r.Total) || math.IsInf(r.Total, 0) || r.Total < 0 {
		return fmt.Errorf("%w: total must be a non-negative amount", ErrInvalidOrder)
	}
	if r.Items == nil {
		return fmt.Errorf("%w: items are required", ErrInvalidOrder)
	}
	if err := validateItems(r.Items); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidOrder, err)
	}
	return nil
}

func validateItems(items []OrderItem) error {
	for i, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return fmt.Errorf("items[%d]: product_id is required", i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("items[%d]: quantity must be positive, got %d", i, item.Quantity)
		}
	}
	return nil
}
