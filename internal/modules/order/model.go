package order

import "time"

// Status is the lifecycle state of an order in the external order service.
type Status string

const (
	StatusPublished Status = "PUBLISHED"
	StatusApproved  Status = "APPROVED"
	StatusCanceled  Status = "CANCELED"
	StatusCompleted Status = "COMPLETED"
)

// Order is a read-only value owned by the external order service. The
// store service never creates or mutates orders; it only consumes them
// in status PUBLISHED. A repeated item id in ItemIDs means that many
// units of the item were ordered.
type Order struct {
	ID            string    `json:"id"`
	OrderDate     time.Time `json:"orderDate"`
	CustomerPhone string    `json:"customerPhoneNumber"`
	StoreID       string    `json:"storeId"`
	ItemIDs       []string  `json:"itemIds"`
	Status        Status    `json:"orderStatus"`
}
