// Package migrations holds the node's schema evolution, one numbered file
// per migration. Each function is idempotent (CREATE ... IF NOT EXISTS) so
// Apply can run unconditionally on every startup.
package migrations

import (
	"database/sql"
	"fmt"
)

// Apply runs every migration against db in order. Statements are plain
// ANSI SQL that both SQLite and PostgreSQL accept, so no dialect
// parameter is needed here — divergence between the two backends is
// confined to query-time placeholder and upsert syntax (see store.Dialect).
func Apply(db *sql.DB) error {
	steps := []struct {
		name string
		fn   func(*sql.DB) error
	}{
		{"entries_and_logs", MigrateEntriesAndLogs},
		{"operations", MigrateOperations},
		{"documents_and_views", MigrateDocumentsAndViews},
		{"tasks", MigrateTasks},
		{"view_document_index", MigrateViewDocumentIndex},
	}
	for _, step := range steps {
		if err := step.fn(db); err != nil {
			return fmt.Errorf("migrations: %s: %w", step.name, err)
		}
	}
	return nil
}
