package store

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/georgemunganga/storesvc/internal/modules/order"
)

// Item is a stock line owned by a Store. Items never outlive their store
// and are never shared across stores; only the quantity is mutable, and
// only through the aggregate's methods.
type Item struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// NewItem creates an item with a fresh id.
func NewItem(name string, price float64, quantity int) *Item {
	return &Item{ID: uuid.NewString(), Name: name, Price: price, Quantity: quantity}
}

// Store is the aggregate root for a store's inventory. Version starts at
// 0 and increments exactly once per successful Approve; it is the
// optimistic-concurrency token checked on write. A loaded Store belongs
// exclusively to the unit of work that loaded it and must not be shared
// or cached across scopes.
type Store struct {
	ID      string
	Name    string
	Version int

	items  []*Item
	events []Event
}

// NewStore creates an empty store with a fresh id at version 0.
func NewStore(name string) *Store {
	return &Store{ID: uuid.NewString(), Name: name}
}

// LoadStore rebuilds an aggregate from persisted state. The pending
// event queue is never persisted and always starts empty on load.
func LoadStore(id, name string, version int, items []*Item) *Store {
	return &Store{ID: id, Name: name, Version: version, items: items}
}

// AddItem appends an item to the store and returns its id. Item ids
// within a store are unique; re-adding an existing id is rejected.
func (s *Store) AddItem(item *Item) (string, error) {
	if s.GetItem(item.ID) != nil {
		return "", fmt.Errorf("%w: item %s already exists in store %s", ErrInvalidItemID, item.ID, s.ID)
	}
	s.items = append(s.items, item)
	return item.ID, nil
}

// RemoveItem detaches an item from the store and returns it, or nil when
// the store has no item with that id.
func (s *Store) RemoveItem(itemID string) *Item {
	for i, item := range s.items {
		if item.ID == itemID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return item
		}
	}
	return nil
}

// GetItem returns the item with the given id, or nil when absent.
// Absence is not a fault.
func (s *Store) GetItem(itemID string) *Item {
	for _, item := range s.items {
		if item.ID == itemID {
			return item
		}
	}
	return nil
}

// SetItemQuantity overwrites an item's quantity. Unknown item ids are
// ignored, matching GetItem's absence-is-not-a-fault contract.
func (s *Store) SetItemQuantity(itemID string, quantity int) {
	if item := s.GetItem(itemID); item != nil {
		item.Quantity = quantity
	}
}

// ListItems returns the live ordered item collection, not a copy.
func (s *Store) ListItems() []*Item {
	return s.items
}

// Approve validates an order against current stock and either decrements
// the matching quantities, queues ApprovedOrder events and bumps the
// version, or fails without mutating anything. Every check runs before
// any mutation, so a rejection on one line leaves every other line
// untouched.
func (s *Store) Approve(o *order.Order) error {
	if o.StoreID != s.ID {
		return fmt.Errorf("%w: order %s belongs to store %s, not %s",
			ErrInvalidOrder, o.ID, o.StoreID, s.ID)
	}
	if o.Status != order.StatusPublished {
		return fmt.Errorf("%w: order %s has status %s", ErrInvalidOrder, o.ID, o.Status)
	}

	// repetitions in the order's item list encode units ordered
	counts := make(map[string]int, len(o.ItemIDs))
	for _, itemID := range o.ItemIDs {
		counts[itemID]++
	}

	for itemID, ordered := range counts {
		item := s.GetItem(itemID)
		if item == nil {
			return fmt.Errorf("%w: order %s references unknown item %s",
				ErrInvalidOrder, o.ID, itemID)
		}
		if item.Quantity < ordered {
			return fmt.Errorf("%w: store %s has %d of item %s, order %s wants %d",
				ErrOutOfStock, s.ID, item.Quantity, itemID, o.ID, ordered)
		}
	}

	for itemID, ordered := range counts {
		s.GetItem(itemID).Quantity -= ordered
		s.events = append(s.events, ApprovedOrder{Order: o})
	}
	s.Version++
	return nil
}

// PullEvents returns and clears the pending domain events, oldest first.
// The unit of work drains events through here after a successful commit,
// so a second drain of the same instance never re-dispatches.
func (s *Store) PullEvents() []Event {
	events := s.events
	s.events = nil
	return events
}
