package domain

import (
	"errors"
	"math"
	"testing"
)

func TestPlaceOrderRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     PlaceOrderRequest
		wantErr bool
	}{
		{
			name: "valid",
			req:  PlaceOrderRequest{UserID: "u1", Total: 42.5, Items: []OrderItem{{ProductID: "p1", Quantity: 2}}},
		},
		{
			name: "valid with empty items",
			req:  PlaceOrderRequest{UserID: "u1", Total: 0, Items: []OrderItem{}},
		},
		{
			name:    "missing user",
			req:     PlaceOrderRequest{UserID: "  ", Items: []OrderItem{}},
			wantErr: true,
		},
		{
			name:    "missing items",
			req:     PlaceOrderRequest{UserID: "u1"},
			wantErr: true,
		},
		{
			name:    "negative total",
			req:     PlaceOrderRequest{UserID: "u1", Total: -0.01, Items: []OrderItem{}},
			wantErr: true,
		},
		{
			name:    "nan total",
			req:     PlaceOrderRequest{UserID: "u1", Total: math.NaN(), Items: []OrderItem{}},
			wantErr: true,
		},
		{
			name:    "negative quantity",
			req:     PlaceOrderRequest{UserID: "u1", Items: []OrderItem{{ProductID: "p1", Quantity: -1}}},
			wantErr: true,
		},
		{
			name:    "missing product",
			req:     PlaceOrderRequest{UserID: "u1", Items: []OrderItem{{Quantity: 1}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidOrder) {
					t.Fatalf("expected ErrInvalidOrder, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
