package store

import "github.com/georgemunganga/storesvc/internal/modules/order"

// Event is a domain event recorded by an aggregate during a mutation and
// dispatched by the unit of work after a successful commit.
type Event interface {
	Name() string
}

// EventApprovedOrder is the bus registration name for ApprovedOrder.
const EventApprovedOrder = "store.order_approved"

// ApprovedOrder is recorded once per approved order line; a handler that
// needs order-level fan-out should dedupe on the order id.
type ApprovedOrder struct {
	Order *order.Order
}

func (ApprovedOrder) Name() string { return EventApprovedOrder }
