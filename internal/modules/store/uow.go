package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// UnitOfWork opens transactional scopes over the store repository.
type UnitOfWork interface {
	Begin(ctx context.Context) (Work, error)
}

// Work is one transactional scope. The contract is deferred rollback:
//
//	w, err := uow.Begin(ctx)
//	defer w.Rollback()
//	... mutate aggregates loaded through w.Stores() ...
//	return w.Commit(ctx)
//
// Rollback is the default on every exit; only an explicit successful
// Commit makes writes durable. After Commit, Rollback is a no-op, and a
// second Commit fails with ErrTxClosed rather than re-dispatching
// events.
type Work interface {
	Stores() Repository
	Commit(ctx context.Context) error
	Rollback() error
}

// PostgresUnitOfWork scopes aggregate mutations into REPEATABLE READ
// transactions. The snapshot isolation plus the per-store version check
// guarantee that of two concurrent approvals against the same store,
// exactly one commit succeeds; the loser surfaces a ConflictError and
// leaves persisted state untouched.
type PostgresUnitOfWork struct {
	db  *sql.DB
	bus *Bus
	log *zap.Logger
}

func NewPostgresUnitOfWork(db *sql.DB, bus *Bus, log *zap.Logger) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{db: db, bus: bus, log: log}
}

// Begin opens a transaction and binds a fresh repository to it. Context
// cancellation rolls the transaction back like any other early exit.
func (u *PostgresUnitOfWork) Begin(ctx context.Context) (Work, error) {
	tx, err := u.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &postgresWork{tx: tx, stores: newPostgresRepository(tx), bus: u.bus, log: u.log}, nil
}

type postgresWork struct {
	tx     *sql.Tx
	stores *postgresRepository
	bus    *Bus
	log    *zap.Logger
	done   bool
}

func (w *postgresWork) Stores() Repository { return w.stores }

// Commit persists every aggregate touched in this scope, commits the
// transaction, then drains the touched aggregates' pending events into
// the bus, oldest first. A dispatch failure after the commit surfaces as
// a PublishError: the state change is durable but the caller must know
// the notification did not go out.
func (w *postgresWork) Commit(ctx context.Context) error {
	if w.done {
		return ErrTxClosed
	}

	for _, t := range w.stores.seen {
		if err := w.stores.persist(ctx, t); err != nil {
			return err // caller's deferred Rollback finalizes the tx
		}
	}

	if err := w.tx.Commit(); err != nil {
		w.done = true
		if isSerializationFailure(err) {
			if len(w.stores.seen) > 0 {
				t := w.stores.seen[0]
				return &ConflictError{StoreID: t.store.ID, Version: t.store.Version}
			}
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return fmt.Errorf("commit: %w", err)
	}
	w.done = true

	for _, t := range w.stores.seen {
		for _, e := range t.store.PullEvents() {
			if err := w.bus.Dispatch(ctx, e); err != nil {
				w.log.Error("post-commit event dispatch failed",
					zap.String("event", e.Name()),
					zap.String("store_id", t.store.ID),
					zap.Error(err))
				return &PublishError{Event: e.Name(), Err: err}
			}
		}
	}
	return nil
}

// Rollback finalizes the transaction unless Commit already did.
func (w *postgresWork) Rollback() error {
	if w.done {
		return nil
	}
	w.done = true
	return w.tx.Rollback()
}
