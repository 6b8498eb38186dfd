package repositories

import (
	"context"
	"errors"
	"fmt"

	"magicbag/internal/common"
	"magicbag/internal/models"

	"github.com/jackc/pgx/v5"
)

type ItemRepository interface {
	// Upsert stores the item and its store in one transaction.
	Upsert(ctx context.Context, item *models.Item) error
	GetByID(ctx context.Context, id string) (*models.Item, error)
	List(ctx context.Context) ([]*models.Item, error)
	Remove(ctx context.Context, id string) error
}

const (
	upsertItemQuery = `
		INSERT INTO items (id, name, display_name, description, collection_info, amount,
			price_minor_units, price_decimals, currency, pickup_start, pickup_end, store_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, display_name = EXCLUDED.display_name,
			description = EXCLUDED.description, collection_info = EXCLUDED.collection_info,
			amount = EXCLUDED.amount, price_minor_units = EXCLUDED.price_minor_units,
			price_decimals = EXCLUDED.price_decimals, currency = EXCLUDED.currency,
			pickup_start = EXCLUDED.pickup_start, pickup_end = EXCLUDED.pickup_end,
			store_id = EXCLUDED.store_id
	`
	selectItemColumns = `
		SELECT i.id, i.name, i.display_name, i.description, i.collection_info, i.amount,
			i.price_minor_units, i.price_decimals, i.currency, i.pickup_start, i.pickup_end,
			s.id, s.name, s.address, s.latitude, s.longitude
		FROM items i
		JOIN stores s ON s.id = i.store_id
	`
	selectItemQuery = selectItemColumns + `WHERE i.id = $1`
	listItemsQuery  = selectItemColumns
	deleteItemQuery = `DELETE FROM items WHERE id = $1`
)

type itemRepo struct {
	db DB
}

func NewItemRepo(db DB) ItemRepository {
	return &itemRepo{db: db}
}

func (r *itemRepo) Upsert(ctx context.Context, item *models.Item) error {
	var start, end *string
	if item.PickupInterval != nil {
		s, e := item.PickupInterval.StartString(), item.PickupInterval.EndString()
		start, end = &s, &e
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin item upsert: %w", err)
	}
	if err := upsertStore(ctx, tx, &item.Store); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	_, err = tx.Exec(ctx, upsertItemQuery, item.ID, item.Name, item.DisplayName, item.Description,
		item.CollectionInfo, item.Amount, item.Price.MinorUnits, item.Price.Decimals, item.Price.Currency,
		start, end, item.Store.ID)
	if err != nil {
		_ = tx.Rollback(ctx)
		if common.IsForeignKeyViolation(err) {
			// The store was removed concurrently.
			return fmt.Errorf("upsert item %s: store %s: %w", item.ID, item.Store.ID, common.ErrIntegrityConflict)
		}
		return fmt.Errorf("upsert item %s: %w", item.ID, err)
	}
	return tx.Commit(ctx)
}

func (r *itemRepo) GetByID(ctx context.Context, id string) (*models.Item, error) {
	item, err := scanItem(r.db.QueryRow(ctx, selectItemQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("item %s: %w", id, common.ErrNotFound)
		}
		return nil, err
	}
	return item, nil
}

func (r *itemRepo) List(ctx context.Context) ([]*models.Item, error) {
	rows, err := r.db.Query(ctx, listItemsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *itemRepo) Remove(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, deleteItemQuery, id)
	return err
}

// scanItem reads one joined row. A stored pickup window that no longer
// parses, or has only one bound, fails the whole read.
func scanItem(row pgx.Row) (*models.Item, error) {
	item := &models.Item{}
	var start, end *string
	err := row.Scan(&item.ID, &item.Name, &item.DisplayName, &item.Description, &item.CollectionInfo,
		&item.Amount, &item.Price.MinorUnits, &item.Price.Decimals, &item.Price.Currency, &start, &end,
		&item.Store.ID, &item.Store.Name, &item.Store.Address, &item.Store.Latitude, &item.Store.Longitude)
	if err != nil {
		return nil, err
	}
	if (start == nil) != (end == nil) {
		return nil, fmt.Errorf("item %s: pickup window has only one bound: %w", item.ID, common.ErrParse)
	}
	if start != nil {
		interval, err := models.ParseInterval(*start, *end)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", item.ID, err)
		}
		item.PickupInterval = &interval
	}
	return item, nil
}
