package repositories

import (
	"context"
	"errors"
	"fmt"

	"magicbag/internal/common"
	"magicbag/internal/models"

	"github.com/jackc/pgx/v5"
)

type LocationRepository interface {
	// Add stores the location and sets its ID.
	Add(ctx context.Context, location *models.Location) error
	GetByID(ctx context.Context, id int64) (*models.Location, error)
	List(ctx context.Context) ([]*models.Location, error)
	Remove(ctx context.Context, id int64) error
}

const (
	insertLocationQuery = `
		INSERT INTO locations (latitude, longitude, full_address)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	findLocationByCoordsQuery = `SELECT id FROM locations WHERE latitude = $1 AND longitude = $2 ORDER BY id LIMIT 1`
	selectLocationQuery       = `SELECT id, latitude, longitude, full_address FROM locations WHERE id = $1`
	listLocationsQuery        = `SELECT id, latitude, longitude, full_address FROM locations`
	deleteLocationQuery       = `DELETE FROM locations WHERE id = $1`
)

type locationRepo struct {
	db     DB
	dedupe bool
}

func NewLocationRepo(db DB, dedupe bool) LocationRepository {
	return &locationRepo{db: db, dedupe: dedupe}
}

func (r *locationRepo) Add(ctx context.Context, location *models.Location) error {
	if r.dedupe {
		var id int64
		err := r.db.QueryRow(ctx, findLocationByCoordsQuery, location.Latitude, location.Longitude).Scan(&id)
		switch {
		case err == nil:
			location.ID = id
			return nil
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("look up location: %w", err)
		}
	}

	err := r.db.QueryRow(ctx, insertLocationQuery, location.Latitude, location.Longitude, location.FullAddress).Scan(&location.ID)
	if err != nil {
		return fmt.Errorf("insert location: %w", err)
	}
	return nil
}

func (r *locationRepo) GetByID(ctx context.Context, id int64) (*models.Location, error) {
	location := &models.Location{}
	err := r.db.QueryRow(ctx, selectLocationQuery, id).Scan(&location.ID, &location.Latitude, &location.Longitude, &location.FullAddress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("location %d: %w", id, common.ErrNotFound)
		}
		return nil, err
	}
	return location, nil
}

func (r *locationRepo) List(ctx context.Context) ([]*models.Location, error) {
	rows, err := r.db.Query(ctx, listLocationsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []*models.Location
	for rows.Next() {
		location := &models.Location{}
		if err := rows.Scan(&location.ID, &location.Latitude, &location.Longitude, &location.FullAddress); err != nil {
			return nil, err
		}
		locations = append(locations, location)
	}
	return locations, rows.Err()
}

func (r *locationRepo) Remove(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, deleteLocationQuery, id)
	return err
}
