package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/georgemunganga/storesvc/internal/modules/order"
)

// Service defines store management and order approval business logic.
type Service interface {
	// ApproveOrder pulls the order from the order service, loads the
	// owning store and applies the approval in one unit of work. It
	// propagates ErrInvalidOrderID, ErrInvalidStoreID, the
	// ErrCannotApprove family and ErrConflict unchanged; it never
	// retries a lost version race.
	ApproveOrder(ctx context.Context, orderID string) (*order.Order, error)

	// Store management
	CreateStore(ctx context.Context, name string) (*Store, error)
	GetStore(ctx context.Context, id string) (*Store, error)
	AddItem(ctx context.Context, storeID, name string, price float64, quantity int) (*Item, error)
	RemoveItem(ctx context.Context, storeID, itemID string) error
	SetItemQuantity(ctx context.Context, storeID, itemID string, quantity int) error
}

// ApprovalGuard fences duplicate approval requests for the same order,
// typically across process instances.
type ApprovalGuard interface {
	// Acquire returns false when an approval for the order id was
	// already claimed.
	Acquire(ctx context.Context, orderID string) (bool, error)
	// Release frees the claim so a failed approval can be retried.
	Release(ctx context.Context, orderID string) error
}

type service struct {
	uow      UnitOfWork
	provider order.Provider
	guard    ApprovalGuard // nil disables duplicate fencing
	log      *zap.Logger
}

// NewService creates the store service. guard may be nil.
func NewService(uow UnitOfWork, provider order.Provider, guard ApprovalGuard, log *zap.Logger) Service {
	return &service{uow: uow, provider: provider, guard: guard, log: log}
}

func (s *service) ApproveOrder(ctx context.Context, orderID string) (*order.Order, error) {
	if s.guard != nil {
		ok, err := s.guard.Acquire(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("approval guard: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: order %s", ErrDuplicateApproval, orderID)
		}
	}

	o, err := s.approve(ctx, orderID)
	if err != nil {
		if s.guard != nil && !durableApproval(err) {
			// free the claim so the caller can retry once the cause clears
			if relErr := s.guard.Release(ctx, orderID); relErr != nil {
				s.log.Warn("approval guard release failed",
					zap.String("order_id", orderID), zap.Error(relErr))
			}
		}
		return nil, err
	}
	return o, nil
}

// durableApproval reports whether the error means the stock decrement
// already committed. The claim must outlive such failures: releasing it
// would let a retry of the same order decrement stock twice.
func durableApproval(err error) bool {
	var pubErr *PublishError
	return errors.As(err, &pubErr) || errors.Is(err, ErrTxClosed)
}

func (s *service) approve(ctx context.Context, orderID string) (*order.Order, error) {
	o, err := s.provider.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	w, err := s.uow.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer w.Rollback()

	st, err := w.Stores().Get(ctx, o.StoreID)
	if err != nil {
		return nil, err
	}
	if err := st.Approve(o); err != nil {
		return nil, err
	}
	if err := w.Commit(ctx); err != nil {
		return nil, err
	}

	s.log.Info("order approved",
		zap.String("order_id", o.ID),
		zap.String("store_id", st.ID),
		zap.Int("store_version", st.Version))
	return o, nil
}

func (s *service) CreateStore(ctx context.Context, name string) (*Store, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: store name", ErrInvalidName)
	}

	w, err := s.uow.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer w.Rollback()

	st := NewStore(name)
	if err := w.Stores().Add(ctx, st); err != nil {
		return nil, err
	}
	if err := w.Commit(ctx); err != nil {
		return nil, err
	}

	s.log.Info("store created", zap.String("store_id", st.ID), zap.String("name", name))
	return st, nil
}

func (s *service) GetStore(ctx context.Context, id string) (*Store, error) {
	w, err := s.uow.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer w.Rollback()

	return w.Stores().Get(ctx, id)
}

func (s *service) AddItem(ctx context.Context, storeID, name string, price float64, quantity int) (*Item, error) {
	if quantity < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	if price < 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrice, price)
	}

	w, err := s.uow.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer w.Rollback()

	st, err := w.Stores().Get(ctx, storeID)
	if err != nil {
		return nil, err
	}
	item := NewItem(name, price, quantity)
	if _, err := st.AddItem(item); err != nil {
		return nil, err
	}
	if err := w.Commit(ctx); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *service) RemoveItem(ctx context.Context, storeID, itemID string) error {
	w, err := s.uow.Begin(ctx)
	if err != nil {
		return err
	}
	defer w.Rollback()

	st, err := w.Stores().Get(ctx, storeID)
	if err != nil {
		return err
	}
	if st.RemoveItem(itemID) == nil {
		return fmt.Errorf("%w: %s", ErrInvalidItemID, itemID)
	}
	return w.Commit(ctx)
}

func (s *service) SetItemQuantity(ctx context.Context, storeID, itemID string, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}

	w, err := s.uow.Begin(ctx)
	if err != nil {
		return err
	}
	defer w.Rollback()

	st, err := w.Stores().Get(ctx, storeID)
	if err != nil {
		return err
	}
	if st.GetItem(itemID) == nil {
		return fmt.Errorf("%w: %s", ErrInvalidItemID, itemID)
	}
	st.SetItemQuantity(itemID, quantity)
	return w.Commit(ctx)
}
