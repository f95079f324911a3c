package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// EnsureLog returns the log_id bound to (public_key, document_id),
// assigning the next monotonic id for that author if none exists yet.
// Races between concurrent writers creating the same author's first log
// for a document are resolved by an INSERT ... ON CONFLICT DO NOTHING
// followed by a re-read
func (s *Store) EnsureLog(ctx context.Context, publicKey types.PublicKey, documentID types.DocumentID, schemaID types.SchemaID) (types.LogID, error) {
	author := publicKey.String()

	existing, err := s.lookupLogID(ctx, author, documentID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return *existing, nil
	}

	nextID, err := s.nextLogIDFor(ctx, author)
	if err != nil {
		return 0, err
	}

	insertQ := fmt.Sprintf(`INSERT INTO logs (public_key, document, log_id, schema)
		VALUES (%s, %s, %s, %s)
		ON CONFLICT (public_key, document) DO NOTHING`, s.ph(1), s.ph(2), s.ph(3), s.ph(4))
	_, err = s.exec.ExecContext(ctx, insertQ, author, string(documentID), strconv.FormatUint(uint64(nextID), 10), string(schemaID))
	if err != nil {
		return 0, fmt.Errorf("store: ensure log insert: %w", err)
	}

	existing, err = s.lookupLogID(ctx, author, documentID)
	if err != nil {
		return 0, err
	}
	if existing == nil {
		return 0, fmt.Errorf("store: ensure log: row missing after insert for %s/%s", author, documentID)
	}
	return *existing, nil
}

func (s *Store) lookupLogID(ctx context.Context, author string, documentID types.DocumentID) (*types.LogID, error) {
	q := fmt.Sprintf(`SELECT log_id FROM logs WHERE public_key = %s AND document = %s`, s.ph(1), s.ph(2))
	var logID string
	err := s.exec.QueryRowContext(ctx, q, author, string(documentID)).Scan(&logID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: lookup log id: %w", err)
	}
	n, err := strconv.ParseUint(logID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("store: lookup log id: %w", err)
	}
	lid := types.LogID(n)
	return &lid, nil
}

func (s *Store) nextLogIDFor(ctx context.Context, author string) (types.LogID, error) {
	q := fmt.Sprintf(`SELECT %s FROM logs WHERE public_key = %s`, s.dialect.CastNumeric("log_id"), s.ph(1))
	rows, err := s.exec.QueryContext(ctx, q, author)
	if err != nil {
		return 0, fmt.Errorf("store: next log id: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var max int64 = -1
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return 0, fmt.Errorf("store: next log id scan: %w", err)
		}
		if v > max {
			max = v
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return types.LogID(max + 1), nil
}

// LogIDForDocument returns the log_id already bound to (public_key,
// documentID), or nil if the author has no log for that document yet —
// the validator's way of checking an update/delete's declared log_id
// without mutating anything.
func (s *Store) LogIDForDocument(ctx context.Context, publicKey types.PublicKey, documentID types.DocumentID) (*types.LogID, error) {
	return s.lookupLogID(ctx, publicKey.String(), documentID)
}

// NextLogID previews the log_id ensure_log would assign to a brand new
// (public_key, document) pair, without writing anything.
func (s *Store) NextLogID(ctx context.Context, publicKey types.PublicKey) (types.LogID, error) {
	return s.nextLogIDFor(ctx, publicKey.String())
}

// GetLog returns the log row for (public_key, log_id), if any.
func (s *Store) GetLog(ctx context.Context, publicKey types.PublicKey, logID types.LogID) (*types.Log, error) {
	q := fmt.Sprintf(`SELECT document, schema FROM logs WHERE public_key = %s AND log_id = %s`, s.ph(1), s.ph(2))
	var doc, schema string
	err := s.exec.QueryRowContext(ctx, q, publicKey.String(), strconv.FormatUint(uint64(logID), 10)).Scan(&doc, &schema)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get log: %w", err)
	}
	return &types.Log{PublicKey: publicKey, LogID: logID, DocumentID: types.DocumentID(doc), SchemaID: types.SchemaID(schema)}, nil
}
