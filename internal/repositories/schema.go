package repositories

import (
	"context"
	"fmt"
)

// schema is applied in order; items depends on stores.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS stores (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		latitude DOUBLE PRECISION NOT NULL DEFAULT 0,
		longitude DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS locations (
		id BIGSERIAL PRIMARY KEY,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		full_address TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		collection_info TEXT NOT NULL DEFAULT '',
		amount INTEGER NOT NULL DEFAULT 0,
		price_minor_units BIGINT NOT NULL DEFAULT 0,
		price_decimals INTEGER NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT '',
		pickup_start TEXT,
		pickup_end TEXT,
		store_id TEXT NOT NULL REFERENCES stores(id) ON DELETE CASCADE,
		CHECK ((pickup_start IS NULL) = (pickup_end IS NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS channels (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	)`,
}

// EnsureSchema creates the tables if they do not exist. It never alters
// an existing table.
func EnsureSchema(ctx context.Context, db execer) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
