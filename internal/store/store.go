// Package store is the node's transactional persistence layer: entries,
// operations, documents, views, schemas, tasks and blob bookkeeping,
// speaking plain database/sql against either SQLite or PostgreSQL through
// a small Dialect seam (see dialect.go), with backend selection handled by
// the factory package's switch on the database_url scheme.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aquadoggo-go/aquadoggo/internal/logging"
)

// Execer is satisfied by both *sql.DB and *sql.Tx, letting every query
// method below run either standalone or inside WithTx's transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the concrete, dialect-parameterized implementation of the
// persistence operations names. One Store value per backend
// connection; sqlite.Open and postgres.Open construct these.
type Store struct {
	db      *sql.DB
	exec    Execer // equals db unless this Store was produced by WithTx
	dialect Dialect
	log     *logging.Logger

	// blobsBasePath is where blob pieces are assembled into files.
	blobsBasePath string
}

// New wraps an already-opened *sql.DB for the given dialect. Callers
// normally reach this through store/sqlite.Open or store/postgres.Open.
func New(db *sql.DB, dialect Dialect, blobsBasePath string) *Store {
	return &Store{
		db:            db,
		exec:          db,
		dialect:       dialect,
		log:           logging.New("store"),
		blobsBasePath: blobsBasePath,
	}
}

// DB exposes the underlying pool for migrations and connection tuning.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect reports which SQL dialect this store speaks.
func (s *Store) Dialect() Dialect { return s.dialect }

// BlobsBasePath returns the directory blob files are written under.
func (s *Store) BlobsBasePath() string { return s.blobsBasePath }

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn against a Store backed by a single transaction, committing
// on success and rolling back on any error fn returns — the publish
// pipeline's "all three writes and the task enqueue commit, or none do"
// requirement.
func (s *Store) WithTx(ctx context.Context, fn func(*Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	txStore := &Store{db: s.db, exec: tx, dialect: s.dialect, log: s.log, blobsBasePath: s.blobsBasePath}

	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Printf("rollback after error failed: %v (original: %v)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit tx: %w", err)
	}
	return nil
}

// ph is a terse alias for dialect placeholder generation used throughout
// the query builders in this package's other files.
func (s *Store) ph(n int) string { return s.dialect.Placeholder(n) }
