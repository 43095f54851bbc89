package store

import "context"

// Repository loads and registers Store aggregates within one unit of
// work. Implementations keep an identity map: repeated Gets for the same
// id return the same instance, and every aggregate touched through Get
// or Add is tracked so the unit of work can persist it and drain its
// events at commit. Aggregates never touched in the scope are never
// persisted and never have events dispatched.
type Repository interface {
	// Get fails with ErrInvalidStoreID when no such store exists.
	Get(ctx context.Context, id string) (*Store, error)
	// Add registers a new aggregate for insertion at commit.
	Add(ctx context.Context, s *Store) error
}
