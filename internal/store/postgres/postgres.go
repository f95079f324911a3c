// Package postgres opens the node's PostgreSQL-backed store using
// jackc/pgx/v5 rather than lib/pq. It goes through pgx's database/sql-compatible
// stdlib adapter so it shares the plain Execer-based Store implementation
// with the sqlite backend, rather than forking a pgxpool-native code path.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/aquadoggo-go/aquadoggo/internal/store"
	"github.com/aquadoggo-go/aquadoggo/internal/store/migrations"
)

// Open connects to the PostgreSQL database at databaseURL, applies pending
// migrations, and returns a dialect-aware Store backed by it.
func Open(ctx context.Context, databaseURL string, maxConnections int, blobsBasePath string) (*store.Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse %s: %w", databaseURL, err)
	}
	if maxConnections > 0 {
		cfg.MaxConns = int32(maxConnections)
	}

	db := stdlib.OpenDB(*cfg.ConnConfig)
	if maxConnections > 0 {
		db.SetMaxOpenConns(maxConnections)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if err := migrations.Apply(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return store.New(db, store.Postgres, blobsBasePath), nil
}
