// Package sqlite opens the node's SQLite-backed store using the
// ncruces/go-sqlite3 driver, a pure-Go, cgo-free SQLite binding.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/aquadoggo-go/aquadoggo/internal/store"
	"github.com/aquadoggo-go/aquadoggo/internal/store/migrations"
)

// Open connects to the SQLite database at path, applies pending
// migrations, and returns a dialect-aware Store backed by it.
func Open(path, blobsBasePath string) (*store.Store, error) {
	db, err := sql.Open("sqlite3", connString(path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// A single writer connection avoids SQLITE_BUSY under the publish
	// pipeline's WithTx; readers are served from the same handle since
	// go-sqlite3 serializes internally.
	db.SetMaxOpenConns(1)

	if err := migrations.Apply(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate %s: %w", path, err)
	}

	return store.New(db, store.SQLite, blobsBasePath), nil
}

func connString(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
}
