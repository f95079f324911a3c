package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateTasks creates the persisted materialization work queue. The
// primary key enforces the "identical (name, input) coalesce" dedup rule —
// document_id and view_id default to the empty string rather than NULL so
// the primary key constraint actually applies across backends.
func MigrateTasks(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			name        TEXT NOT NULL,
			document_id TEXT NOT NULL DEFAULT '',
			view_id     TEXT NOT NULL DEFAULT '',
			retries     INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (name, document_id, view_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("migrations: create tasks: %w", err)
	}
	return nil
}
