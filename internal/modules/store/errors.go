package store

import (
	"errors"
	"fmt"
)

// Business rejections share ErrCannotApprove so callers can match the
// whole family with a single errors.Is check.
var (
	ErrCannotApprove = errors.New("cannot approve order")
	ErrInvalidOrder  = fmt.Errorf("%w: invalid order", ErrCannotApprove)
	ErrOutOfStock    = fmt.Errorf("%w: out of stock", ErrCannotApprove)
)

var (
	ErrInvalidStoreID  = errors.New("invalid store id")
	ErrInvalidItemID   = errors.New("invalid item id")
	ErrInvalidName     = errors.New("name is required")
	ErrInvalidPrice    = errors.New("price must not be negative")
	ErrInvalidQuantity = errors.New("quantity must not be negative")

	// ErrDuplicateApproval is returned when an approval request for the
	// same order id is already in flight or was recently processed.
	ErrDuplicateApproval = errors.New("duplicate approval request")

	// ErrTxClosed is returned when a unit of work is committed after it
	// has already been finalized.
	ErrTxClosed = errors.New("unit of work already finalized")

	// ErrConflict marks a lost optimistic-concurrency race.
	ErrConflict = errors.New("concurrent modification")
)

// ConflictError reports that another writer committed a change to the
// same store between this unit of work's load and its commit. It carries
// what a caller needs to decide on a retry.
type ConflictError struct {
	StoreID string
	Version int // version the failed commit attempted to write
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent modification of store %s (attempted version %d)", e.StoreID, e.Version)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// PublishError reports that the storage commit succeeded but dispatching
// a post-commit event failed. State is durable; the notification is not.
type PublishError struct {
	Event string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("event %s not published after commit: %v", e.Event, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
