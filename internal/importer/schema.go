package importer

import (
	"context"
	"database/sql"
	"fmt"
)

// Postgres DDL for the import target. The upsert statements themselves stay
// dialect-neutral so tests can run them against SQLite.
const schema = `
CREATE TABLE IF NOT EXISTS stores (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS categories (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	category_id INTEGER NOT NULL REFERENCES categories (id),
	store_id INTEGER NOT NULL REFERENCES stores (id),
	title TEXT NOT NULL,
	product_url TEXT,
	UNIQUE (title, store_id)
);

CREATE TABLE IF NOT EXISTS current_extended_prices (
	product_id TEXT PRIMARY KEY REFERENCES products (id),
	retail_price DOUBLE PRECISION,
	retail_comparable_price DOUBLE PRECISION,
	discount_price DOUBLE PRECISION,
	discount_comparable_price DOUBLE PRECISION,
	discount_percentage DOUBLE PRECISION,
	loyalty_price DOUBLE PRECISION,
	loyalty_comparable_price DOUBLE PRECISION,
	loyalty_discount_percentage DOUBLE PRECISION,
	unit TEXT,
	date_updated TIMESTAMPTZ
);
`

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
