package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// serializationFailure is the Postgres SQLSTATE raised when a repeatable
// read snapshot cannot be serialized against a concurrent committed
// write.
const serializationFailure = "40001"

// tracked pairs a loaded aggregate with the version observed at load;
// the commit-time version check runs against that snapshot.
type tracked struct {
	store         *Store
	loadedVersion int
	isNew         bool
}

// postgresRepository is bound to a single unit of work's transaction.
type postgresRepository struct {
	tx   *sql.Tx
	byID map[string]*tracked
	seen []*tracked // first-touch order
}

func newPostgresRepository(tx *sql.Tx) *postgresRepository {
	return &postgresRepository{tx: tx, byID: make(map[string]*tracked)}
}

func (r *postgresRepository) Get(ctx context.Context, id string) (*Store, error) {
	if t, ok := r.byID[id]; ok {
		return t.store, nil
	}

	var name string
	var version int
	err := r.tx.QueryRowContext(ctx,
		`SELECT name, version FROM stores WHERE id=$1`, id).Scan(&name, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStoreID, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query store %s: %w", id, err)
	}

	items, err := r.loadItems(ctx, id)
	if err != nil {
		return nil, err
	}

	s := LoadStore(id, name, version, items)
	r.track(&tracked{store: s, loadedVersion: version})
	return s, nil
}

func (r *postgresRepository) Add(ctx context.Context, s *Store) error {
	if _, ok := r.byID[s.ID]; ok {
		return fmt.Errorf("store %s already registered in this unit of work", s.ID)
	}
	r.track(&tracked{store: s, isNew: true})
	return nil
}

func (r *postgresRepository) track(t *tracked) {
	r.byID[t.store.ID] = t
	r.seen = append(r.seen, t)
}

func (r *postgresRepository) loadItems(ctx context.Context, storeID string) ([]*Item, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT i.id, i.name, i.price, i.quantity
		FROM items i
		JOIN store_items si ON si.item_id = i.id
		WHERE si.store_id = $1
		ORDER BY si.id ASC`, storeID)
	if err != nil {
		return nil, fmt.Errorf("query items of store %s: %w", storeID, err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item := &Item{}
		if err := rows.Scan(&item.ID, &item.Name, &item.Price, &item.Quantity); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// persist writes one tracked aggregate's state. For existing stores the
// UPDATE carries the version observed at load; zero rows affected, or a
// serialization failure from the repeatable read snapshot, means another
// writer won the race.
func (r *postgresRepository) persist(ctx context.Context, t *tracked) error {
	s := t.store

	if t.isNew {
		_, err := r.tx.ExecContext(ctx,
			`INSERT INTO stores (id, name, version) VALUES ($1, $2, $3)`,
			s.ID, s.Name, s.Version)
		if err != nil {
			return fmt.Errorf("insert store %s: %w", s.ID, err)
		}
	} else {
		result, err := r.tx.ExecContext(ctx,
			`UPDATE stores SET name=$2, version=$3 WHERE id=$1 AND version=$4`,
			s.ID, s.Name, s.Version, t.loadedVersion)
		if isSerializationFailure(err) {
			return &ConflictError{StoreID: s.ID, Version: s.Version}
		}
		if err != nil {
			return fmt.Errorf("update store %s: %w", s.ID, err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return &ConflictError{StoreID: s.ID, Version: s.Version}
		}
	}

	itemIDs := make([]string, 0, len(s.ListItems()))
	for _, item := range s.ListItems() {
		_, err := r.tx.ExecContext(ctx, `
			INSERT INTO items (id, name, price, quantity)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE
			SET name=EXCLUDED.name, price=EXCLUDED.price, quantity=EXCLUDED.quantity`,
			item.ID, item.Name, item.Price, item.Quantity)
		if isSerializationFailure(err) {
			return &ConflictError{StoreID: s.ID, Version: s.Version}
		}
		if err != nil {
			return fmt.Errorf("upsert item %s: %w", item.ID, err)
		}
		_, err = r.tx.ExecContext(ctx, `
			INSERT INTO store_items (store_id, item_id) VALUES ($1, $2)
			ON CONFLICT (store_id, item_id) DO NOTHING`, s.ID, item.ID)
		if err != nil {
			return fmt.Errorf("link item %s to store %s: %w", item.ID, s.ID, err)
		}
		itemIDs = append(itemIDs, item.ID)
	}

	// items are owned by value: drop links the aggregate no longer holds,
	// then sweep item rows nothing references anymore
	_, err := r.tx.ExecContext(ctx,
		`DELETE FROM store_items WHERE store_id=$1 AND item_id <> ALL($2)`,
		s.ID, pq.Array(itemIDs))
	if err != nil {
		return fmt.Errorf("prune items of store %s: %w", s.ID, err)
	}
	_, err = r.tx.ExecContext(ctx,
		`DELETE FROM items WHERE id NOT IN (SELECT item_id FROM store_items)`)
	if err != nil {
		return fmt.Errorf("sweep orphaned items: %w", err)
	}
	return nil
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == serializationFailure
}
