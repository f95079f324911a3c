package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateDocumentsAndViews creates the materialized read model: document
// views (immutable snapshots) and documents (the mutable "current view"
// pointer each reduce task upserts).
func MigrateDocumentsAndViews(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS document_views (
			view_id     TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			schema_id   TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("migrations: create document_views: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_document_views_document ON document_views (document_id);
	`)
	if err != nil {
		return fmt.Errorf("migrations: index document_views: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS document_view_fields (
			view_id      TEXT NOT NULL REFERENCES document_views(view_id),
			name         TEXT NOT NULL,
			field_type   TEXT NOT NULL,
			value        TEXT NOT NULL,
			list_index   INTEGER NOT NULL DEFAULT 0,
			operation_id TEXT NOT NULL,
			PRIMARY KEY (view_id, name, list_index)
		);
	`)
	if err != nil {
		return fmt.Errorf("migrations: create document_view_fields: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			document_id     TEXT PRIMARY KEY,
			current_view_id TEXT NOT NULL,
			schema_id       TEXT NOT NULL,
			is_deleted      TEXT NOT NULL DEFAULT 'false',
			owner           TEXT NOT NULL DEFAULT '',
			edited          TEXT NOT NULL DEFAULT ''
		);
	`)
	if err != nil {
		return fmt.Errorf("migrations: create documents: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_documents_schema ON documents (schema_id);
	`)
	if err != nil {
		return fmt.Errorf("migrations: index documents: %w", err)
	}
	return nil
}
