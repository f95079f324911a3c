package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateOperations creates the operation and operation-field tables the
// publish pipeline writes to and the materializer's reduce task reads from.
func MigrateOperations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS operations_v1 (
			operation_id TEXT PRIMARY KEY,
			document_id  TEXT NOT NULL,
			action       TEXT NOT NULL,
			schema_id    TEXT NOT NULL,
			previous     TEXT NOT NULL DEFAULT '[]',
			encoded_bytes BLOB NOT NULL DEFAULT ''
		);
	`)
	if err != nil {
		return fmt.Errorf("migrations: create operations_v1: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_operations_document ON operations_v1 (document_id);
	`)
	if err != nil {
		return fmt.Errorf("migrations: index operations_v1: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS operation_fields_v1 (
			operation_id TEXT NOT NULL REFERENCES operations_v1(operation_id),
			name         TEXT NOT NULL,
			field_type   TEXT NOT NULL,
			value        TEXT NOT NULL,
			list_index   INTEGER NOT NULL DEFAULT 0,
			cursor       TEXT NOT NULL UNIQUE
		);
	`)
	if err != nil {
		return fmt.Errorf("migrations: create operation_fields_v1: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_operation_fields_operation ON operation_fields_v1 (operation_id, name);
	`)
	if err != nil {
		return fmt.Errorf("migrations: index operation_fields_v1: %w", err)
	}
	return nil
}
