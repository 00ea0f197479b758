// Package postgres is the pgx-backed reservation store.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const connectTimeout = 10 * time.Second

// Connect opens a pool and verifies the database is reachable.
func Connect(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MinConns = min(5, cfg.MaxConns)

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT,
	base_price NUMERIC(10, 2) NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS variants (
	id BIGSERIAL PRIMARY KEY,
	product_id BIGINT NOT NULL REFERENCES products(id),
	sku TEXT UNIQUE NOT NULL,
	price_adjustment NUMERIC(10, 2) NOT NULL DEFAULT 0,
	stock_quantity INT NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0)
);

CREATE TABLE IF NOT EXISTS reservations (
	id UUID PRIMARY KEY,
	variant_id BIGINT NOT NULL REFERENCES variants(id),
	owner_id TEXT,
	cart_id TEXT NOT NULL,
	quantity INT NOT NULL CHECK (quantity > 0),
	unit_price NUMERIC(12, 2) NOT NULL,
	price_snapshot NUMERIC(12, 2) NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_reservations_expires_at ON reservations (expires_at);
CREATE INDEX IF NOT EXISTS idx_reservations_variant ON reservations (variant_id, expires_at);
CREATE INDEX IF NOT EXISTS idx_reservations_owner ON reservations (owner_id, expires_at);

CREATE TABLE IF NOT EXISTS customer_tiers (
	owner_id TEXT PRIMARY KEY,
	tier TEXT NOT NULL
);
`

// EnsureSchema creates the tables the store needs if they are missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}
