package order

import (
	"context"
	"errors"
)

// ErrInvalidOrderID is returned when an order id does not resolve to an
// order in the external order service.
var ErrInvalidOrderID = errors.New("invalid order id")

// Provider fetches orders from the external order service.
type Provider interface {
	// GetOrder fails with ErrInvalidOrderID when the order does not exist.
	GetOrder(ctx context.Context, id string) (*Order, error)
	// ListOrders returns every order placed against a store.
	ListOrders(ctx context.Context, storeID string) ([]*Order, error)
}
