package repositories

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the repositories use. pgxmock pools
// satisfy it as well.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Options tune repository behavior.
type Options struct {
	// DedupeLocations makes LocationRepository.Add return an existing row
	// with identical coordinates instead of inserting a new one.
	DedupeLocations bool
}

// PersistenceStore owns the schema and the per-entity repositories.
type PersistenceStore struct {
	db        DB
	Stores    StoreRepository
	Items     ItemRepository
	Locations LocationRepository
	Channels  ChannelRepository
}

// NewPersistenceStore wires every repository to db.
func NewPersistenceStore(db DB, opts Options, logger *slog.Logger) *PersistenceStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistenceStore{
		db:        db,
		Stores:    NewStoreRepo(db),
		Items:     NewItemRepo(db),
		Locations: NewLocationRepo(db, opts.DedupeLocations),
		Channels:  NewChannelRepo(db, logger),
	}
}

// Initialize creates missing tables. Existing tables are left untouched.
func (p *PersistenceStore) Initialize(ctx context.Context) error {
	return EnsureSchema(ctx, p.db)
}

// Ping checks database connectivity.
func (p *PersistenceStore) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}
