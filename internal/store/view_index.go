package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// RecordViewOwner upserts the view_id -> document_id reverse mapping the
// reduce task maintains for every DAG cut it folds through, not only the
// current tip, so a pinned_relation's bare view_id can later be resolved
// back to the document it must be replayed from.
func (s *Store) RecordViewOwner(ctx context.Context, viewID types.ViewID, documentID types.DocumentID) error {
	suffix := s.dialect.UpsertSuffix([]string{"view_id"}, []string{"document_id"})
	q := fmt.Sprintf(`INSERT INTO view_document_index (view_id, document_id) VALUES (%s, %s) %s`,
		s.ph(1), s.ph(2), suffix)
	_, err := s.exec.ExecContext(ctx, q, string(viewID), string(documentID))
	if err != nil {
		return fmt.Errorf("store: record view owner: %w", err)
	}
	return nil
}

// DocumentForView returns the document a historical view_id belongs to, or
// "" if the view has never been folded through by a reduce task.
func (s *Store) DocumentForView(ctx context.Context, viewID types.ViewID) (types.DocumentID, error) {
	q := fmt.Sprintf(`SELECT document_id FROM view_document_index WHERE view_id = %s`, s.ph(1))
	var doc string
	err := s.exec.QueryRowContext(ctx, q, string(viewID)).Scan(&doc)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: document for view: %w", err)
	}
	return types.DocumentID(doc), nil
}
