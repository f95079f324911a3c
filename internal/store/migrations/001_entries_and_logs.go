package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateEntriesAndLogs creates the two tables the replication and publish
// pipelines write first: the append-only entry log and the per-author log
// registry that assigns each (public_key, document) pair a log_id.
func MigrateEntriesAndLogs(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS logs (
			public_key TEXT NOT NULL,
			document   TEXT NOT NULL,
			log_id     TEXT NOT NULL,
			schema     TEXT NOT NULL,
			PRIMARY KEY (public_key, document)
		);
	`)
	if err != nil {
		return fmt.Errorf("migrations: create logs: %w", err)
	}

	_, err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_logs_public_key_log_id ON logs (public_key, log_id);
	`)
	if err != nil {
		return fmt.Errorf("migrations: index logs: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			author       TEXT NOT NULL,
			log_id       TEXT NOT NULL,
			seq_num      TEXT NOT NULL,
			entry_hash   TEXT NOT NULL UNIQUE,
			entry_bytes  BLOB NOT NULL,
			payload_hash TEXT NOT NULL,
			payload_size TEXT NOT NULL,
			backlink     TEXT NOT NULL DEFAULT '',
			skiplink     TEXT NOT NULL DEFAULT '',
			signature    BLOB NOT NULL,
			PRIMARY KEY (author, log_id, seq_num)
		);
	`)
	if err != nil {
		return fmt.Errorf("migrations: create entries: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_entries_author_log ON entries (author, log_id);
	`)
	if err != nil {
		return fmt.Errorf("migrations: index entries: %w", err)
	}
	return nil
}
