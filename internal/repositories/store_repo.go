package repositories

import (
	"context"
	"errors"
	"fmt"

	"magicbag/internal/common"
	"magicbag/internal/models"

	"github.com/jackc/pgx/v5"
)

type StoreRepository interface {
	Upsert(ctx context.Context, store *models.Store) error
	GetByID(ctx context.Context, id string) (*models.Store, error)
	List(ctx context.Context) ([]*models.Store, error)
	Remove(ctx context.Context, id string) error
}

const (
	upsertStoreQuery = `
		INSERT INTO stores (id, name, address, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, address = EXCLUDED.address,
			latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude
	`
	selectStoreQuery = `SELECT id, name, address, latitude, longitude FROM stores WHERE id = $1`
	listStoresQuery  = `SELECT id, name, address, latitude, longitude FROM stores`
	deleteStoreQuery = `DELETE FROM stores WHERE id = $1`
)

type storeRepo struct {
	db DB
}

func NewStoreRepo(db DB) StoreRepository {
	return &storeRepo{db: db}
}

func (r *storeRepo) Upsert(ctx context.Context, store *models.Store) error {
	return upsertStore(ctx, r.db, store)
}

func upsertStore(ctx context.Context, db execer, store *models.Store) error {
	_, err := db.Exec(ctx, upsertStoreQuery, store.ID, store.Name, store.Address, store.Latitude, store.Longitude)
	if err != nil {
		return fmt.Errorf("upsert store %s: %w", store.ID, err)
	}
	return nil
}

func (r *storeRepo) GetByID(ctx context.Context, id string) (*models.Store, error) {
	store := &models.Store{}
	err := r.db.QueryRow(ctx, selectStoreQuery, id).Scan(&store.ID, &store.Name, &store.Address, &store.Latitude, &store.Longitude)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("store %s: %w", id, common.ErrNotFound)
		}
		return nil, err
	}
	return store, nil
}

func (r *storeRepo) List(ctx context.Context) ([]*models.Store, error) {
	rows, err := r.db.Query(ctx, listStoresQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stores []*models.Store
	for rows.Next() {
		store := &models.Store{}
		if err := rows.Scan(&store.ID, &store.Name, &store.Address, &store.Latitude, &store.Longitude); err != nil {
			return nil, err
		}
		stores = append(stores, store)
	}
	return stores, rows.Err()
}

// Remove deletes the store and, through the foreign key, its items.
func (r *storeRepo) Remove(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, deleteStoreQuery, id)
	return err
}
