package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateViewDocumentIndex creates the reverse index from a historical
// view_id back to the document it belongs to. The reduce task populates
// one row per intermediate DAG cut it folds through (not just the current
// tip), so a later dependency task can resolve a bare pinned_relation
// view_id back to the document whose operations must be replayed to
// rematerialize it.
func MigrateViewDocumentIndex(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS view_document_index (
			view_id     TEXT PRIMARY KEY,
			document_id TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("migrations: create view_document_index: %w", err)
	}
	return nil
}
