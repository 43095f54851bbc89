package store

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/georgemunganga/storesvc/internal/modules/order"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	if err := db.Ping(); err != nil {
		t.Skipf("postgres not available: %v", err)
	}

	schema, err := os.ReadFile("../../../schema.sql")
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Exec("DELETE FROM store_items")
		db.Exec("DELETE FROM items")
		db.Exec("DELETE FROM stores")
		db.Close()
	})
	return db
}

func insertStore(t *testing.T, db *sql.DB, s *Store) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO stores (id, name, version) VALUES ($1, $2, $3)`,
		s.ID, s.Name, s.Version)
	require.NoError(t, err)
	for _, item := range s.ListItems() {
		_, err := db.Exec(`INSERT INTO items (id, name, price, quantity) VALUES ($1, $2, $3, $4)`,
			item.ID, item.Name, item.Price, item.Quantity)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO store_items (store_id, item_id) VALUES ($1, $2)`,
			s.ID, item.ID)
		require.NoError(t, err)
	}
}

func itemQuantity(t *testing.T, db *sql.DB, itemID string) int {
	t.Helper()
	var quantity int
	require.NoError(t, db.QueryRow(
		`SELECT quantity FROM items WHERE id=$1`, itemID).Scan(&quantity))
	return quantity
}

func storeVersion(t *testing.T, db *sql.DB, storeID string) int {
	t.Helper()
	var version int
	require.NoError(t, db.QueryRow(
		`SELECT version FROM stores WHERE id=$1`, storeID).Scan(&version))
	return version
}

func TestUnitOfWorkApprovesOrder(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	item := NewItem("Item_001", 1000, 10)
	seed := makeStore(t, item)
	insertStore(t, db, seed)

	bus := NewBus()
	var dispatched []Event
	bus.Subscribe(EventApprovedOrder, func(ctx context.Context, e Event) error {
		dispatched = append(dispatched, e)
		return nil
	})
	uow := NewPostgresUnitOfWork(db, bus, zap.NewNop())

	w, err := uow.Begin(ctx)
	require.NoError(t, err)
	defer w.Rollback()

	s, err := w.Stores().Get(ctx, seed.ID)
	require.NoError(t, err)
	o := &order.Order{
		ID:      "o1",
		StoreID: s.ID,
		ItemIDs: []string{item.ID},
		Status:  order.StatusPublished,
	}
	require.NoError(t, s.Approve(o))
	require.NoError(t, w.Commit(ctx))

	assert.Equal(t, 9, itemQuantity(t, db, item.ID))
	assert.Equal(t, 1, storeVersion(t, db, seed.ID))
	require.Len(t, dispatched, 1)
	assert.Equal(t, EventApprovedOrder, dispatched[0].Name())
}

func TestUnitOfWorkRepeatedGetReturnsSameInstance(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	seed := makeStore(t, NewItem("Item_001", 1000, 10))
	insertStore(t, db, seed)

	uow := NewPostgresUnitOfWork(db, NewBus(), zap.NewNop())
	w, err := uow.Begin(ctx)
	require.NoError(t, err)
	defer w.Rollback()

	first, err := w.Stores().Get(ctx, seed.ID)
	require.NoError(t, err)
	second, err := w.Stores().Get(ctx, seed.ID)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestUnitOfWorkGetUnknownStore(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	uow := NewPostgresUnitOfWork(db, NewBus(), zap.NewNop())
	w, err := uow.Begin(ctx)
	require.NoError(t, err)
	defer w.Rollback()

	_, err = w.Stores().Get(ctx, "no-such-store")
	assert.ErrorIs(t, err, ErrInvalidStoreID)
}

func TestUnitOfWorkRollsBackByDefault(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	uow := NewPostgresUnitOfWork(db, NewBus(), zap.NewNop())

	s := makeStore(t, NewItem("Item_001", 1000, 10))

	w, err := uow.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Stores().Add(ctx, s))
	require.NoError(t, w.Rollback())

	w2, err := uow.Begin(ctx)
	require.NoError(t, err)
	defer w2.Rollback()
	_, err = w2.Stores().Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrInvalidStoreID)
}

func TestUnitOfWorkAddThenGetRoundtrip(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	uow := NewPostgresUnitOfWork(db, NewBus(), zap.NewNop())

	item := NewItem("Item_001", 1234.5, 7)
	s := makeStore(t, item)

	w, err := uow.Begin(ctx)
	require.NoError(t, err)
	defer w.Rollback()
	require.NoError(t, w.Stores().Add(ctx, s))
	require.NoError(t, w.Commit(ctx))

	w2, err := uow.Begin(ctx)
	require.NoError(t, err)
	defer w2.Rollback()
	loaded, err := w2.Stores().Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Name, loaded.Name)
	assert.Equal(t, 0, loaded.Version)
	require.Len(t, loaded.ListItems(), 1)
	assert.Equal(t, item.ID, loaded.ListItems()[0].ID)
	assert.Equal(t, 7, loaded.ListItems()[0].Quantity)
	assert.Empty(t, loaded.PullEvents())
}

func TestUnitOfWorkRemovedItemsArePruned(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	uow := NewPostgresUnitOfWork(db, NewBus(), zap.NewNop())

	keep := NewItem("Item_001", 1000, 5)
	drop := NewItem("Item_002", 2000, 5)
	seed := makeStore(t, keep, drop)
	insertStore(t, db, seed)

	w, err := uow.Begin(ctx)
	require.NoError(t, err)
	defer w.Rollback()
	s, err := w.Stores().Get(ctx, seed.ID)
	require.NoError(t, err)
	require.NotNil(t, s.RemoveItem(drop.ID))
	require.NoError(t, w.Commit(ctx))

	w2, err := uow.Begin(ctx)
	require.NoError(t, err)
	defer w2.Rollback()
	loaded, err := w2.Stores().Get(ctx, seed.ID)
	require.NoError(t, err)
	require.Len(t, loaded.ListItems(), 1)
	assert.Equal(t, keep.ID, loaded.ListItems()[0].ID)

	var orphans int
	require.NoError(t, db.QueryRow(
		`SELECT count(*) FROM items WHERE id=$1`, drop.ID).Scan(&orphans))
	assert.Equal(t, 0, orphans)
}

func TestUnitOfWorkCommitTwiceFails(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	uow := NewPostgresUnitOfWork(db, NewBus(), zap.NewNop())

	w, err := uow.Begin(ctx)
	require.NoError(t, err)
	defer w.Rollback()
	require.NoError(t, w.Stores().Add(ctx, makeStore(t)))
	require.NoError(t, w.Commit(ctx))

	assert.ErrorIs(t, w.Commit(ctx), ErrTxClosed)
}

func TestUnitOfWorkConcurrentApprovalsOneWins(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	item := NewItem("Item_001", 1000, 10)
	seed := makeStore(t, item)
	insertStore(t, db, seed)

	uow := NewPostgresUnitOfWork(db, NewBus(), zap.NewNop())

	w1, err := uow.Begin(ctx)
	require.NoError(t, err)
	defer w1.Rollback()
	w2, err := uow.Begin(ctx)
	require.NoError(t, err)
	defer w2.Rollback()

	s1, err := w1.Stores().Get(ctx, seed.ID)
	require.NoError(t, err)
	s2, err := w2.Stores().Get(ctx, seed.ID)
	require.NoError(t, err)

	newOrder := func(id string) *order.Order {
		return &order.Order{
			ID:      id,
			StoreID: seed.ID,
			ItemIDs: []string{item.ID},
			Status:  order.StatusPublished,
		}
	}
	require.NoError(t, s1.Approve(newOrder("o1")))
	require.NoError(t, s2.Approve(newOrder("o2")))

	require.NoError(t, w1.Commit(ctx))

	err = w2.Commit(ctx)
	require.ErrorIs(t, err, ErrConflict)

	// the conflict carries what a retry decision needs
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, seed.ID, conflict.StoreID)
	assert.Equal(t, 1, conflict.Version)

	// exactly one decrement landed
	assert.Equal(t, 9, itemQuantity(t, db, item.ID))
	assert.Equal(t, 1, storeVersion(t, db, seed.ID))
}

func TestUnitOfWorkPublishFailureAfterCommit(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	item := NewItem("Item_001", 1000, 10)
	seed := makeStore(t, item)
	insertStore(t, db, seed)

	bus := NewBus()
	bus.Subscribe(EventApprovedOrder, func(ctx context.Context, e Event) error {
		return assert.AnError
	})
	uow := NewPostgresUnitOfWork(db, bus, zap.NewNop())

	w, err := uow.Begin(ctx)
	require.NoError(t, err)
	defer w.Rollback()
	s, err := w.Stores().Get(ctx, seed.ID)
	require.NoError(t, err)
	require.NoError(t, s.Approve(&order.Order{
		ID: "o1", StoreID: seed.ID, ItemIDs: []string{item.ID}, Status: order.StatusPublished,
	}))

	err = w.Commit(ctx)
	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, EventApprovedOrder, pubErr.Event)

	// the state change is durable despite the failed notification
	assert.Equal(t, 9, itemQuantity(t, db, item.ID))
}
