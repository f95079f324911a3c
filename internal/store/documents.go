package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// InsertDocument upserts the document row's current_view_id / is_deleted
// pointer, the terminal step of a reduce task. owner and
// edited are meta fields the query planner exposes alongside the
// document's schema fields; edited is stored as decimal Unix nanoseconds,
// not a timestamp string, so it sorts correctly under CastNumeric the
// same way seq_num and log_id do.
func (s *Store) InsertDocument(ctx context.Context, doc *types.Document) error {
	suffix := s.dialect.UpsertSuffix([]string{"document_id"}, []string{"current_view_id", "schema_id", "is_deleted", "owner", "edited"})
	q := fmt.Sprintf(`INSERT INTO documents (document_id, current_view_id, schema_id, is_deleted, owner, edited)
		VALUES (%s, %s, %s, %s, %s, %s) %s`, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), suffix)
	_, err := s.exec.ExecContext(ctx, q, string(doc.DocumentID), string(doc.CurrentViewID), string(doc.SchemaID),
		boolLiteral(doc.IsDeleted), doc.Owner.String(), strconv.FormatInt(doc.Edited.UTC().UnixNano(), 10))
	if err != nil {
		return fmt.Errorf("store: insert document: %w", err)
	}
	return nil
}

// GetDocument loads a materialized document's current pointer.
func (s *Store) GetDocument(ctx context.Context, id types.DocumentID) (*types.Document, error) {
	q := fmt.Sprintf(`SELECT current_view_id, schema_id, is_deleted, owner, edited FROM documents WHERE document_id = %s`, s.ph(1))
	var viewID, schemaID, isDeleted, owner, edited string
	err := s.exec.QueryRowContext(ctx, q, string(id)).Scan(&viewID, &schemaID, &isDeleted, &owner, &edited)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get document: %w", err)
	}
	doc := &types.Document{
		DocumentID:    id,
		CurrentViewID: types.ViewID(viewID),
		SchemaID:      types.SchemaID(schemaID),
		IsDeleted:     isDeleted == "true",
	}
	if owner != "" {
		if pub, err := types.ParsePublicKey(owner); err == nil {
			doc.Owner = pub
		}
	}
	if edited != "" {
		if n, err := strconv.ParseInt(edited, 10, 64); err == nil {
			doc.Edited = time.Unix(0, n).UTC()
		}
	}
	return doc, nil
}

// ListDocumentViewsBySchema returns the current view id of every
// undeleted document materialized under schemaID, e.g. to rebuild an
// in-memory schema.Registry from already-committed schema_definition_v1
// documents on a fresh process.
func (s *Store) ListDocumentViewsBySchema(ctx context.Context, schemaID types.SchemaID) ([]types.ViewID, error) {
	q := fmt.Sprintf(`SELECT current_view_id FROM documents WHERE schema_id = %s AND is_deleted = %s`, s.ph(1), s.ph(2))
	rows, err := s.exec.QueryContext(ctx, q, string(schemaID), boolLiteral(false))
	if err != nil {
		return nil, fmt.Errorf("store: list documents by schema: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.ViewID
	for rows.Next() {
		var viewID string
		if err := rows.Scan(&viewID); err != nil {
			return nil, fmt.Errorf("store: scan document view: %w", err)
		}
		out = append(out, types.ViewID(viewID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list documents by schema: %w", err)
	}
	return out, nil
}

// DeleteDocument removes a document and every view/field row that belongs
// to it, cascading by hand since views are keyed by view_id, not
// document_id — the garbage_collection task is the only caller. It does
// not touch logs/entries/operations_v1: those stay append-only (see
// DESIGN.md's deletion-cascade scope decision).
func (s *Store) DeleteDocument(ctx context.Context, id types.DocumentID) error {
	return s.WithTx(ctx, func(tx *Store) error {
		viewQ := fmt.Sprintf(`SELECT view_id FROM document_views WHERE document_id = %s`, tx.ph(1))
		rows, err := tx.exec.QueryContext(ctx, viewQ, string(id))
		if err != nil {
			return fmt.Errorf("store: delete document: list views: %w", err)
		}
		var viewIDs []types.ViewID
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				_ = rows.Close()
				return fmt.Errorf("store: delete document: scan view: %w", err)
			}
			viewIDs = append(viewIDs, types.ViewID(v))
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return err
		}
		_ = rows.Close()

		for _, v := range viewIDs {
			if err := tx.PruneDocumentView(ctx, v); err != nil {
				return err
			}
		}

		delQ := fmt.Sprintf(`DELETE FROM documents WHERE document_id = %s`, tx.ph(1))
		if _, err := tx.exec.ExecContext(ctx, delQ, string(id)); err != nil {
			return fmt.Errorf("store: delete document: %w", err)
		}
		return nil
	})
}

// InsertDocumentView persists a view and its resolved fields as a single
// unit. view.Fields provenance (OperationID) is kept per-field so the
// query planner can cite which operation produced each value.
func (s *Store) InsertDocumentView(ctx context.Context, documentID types.DocumentID, view *types.DocumentView) error {
	return s.WithTx(ctx, func(tx *Store) error {
		viewQ := fmt.Sprintf(`INSERT INTO document_views (view_id, document_id, schema_id)
			VALUES (%s, %s, %s)`, tx.ph(1), tx.ph(2), tx.ph(3))
		if _, err := tx.exec.ExecContext(ctx, viewQ, string(view.ViewID), string(documentID), view.SchemaID); err != nil {
			return fmt.Errorf("store: insert document view: %w", err)
		}

		for name, field := range view.Fields {
			if err := tx.insertViewFieldRows(ctx, view.ViewID, name, field.Value, field.OperationID, 0); err != nil {
				return err
			}
		}
		return nil
	})
}

// insertViewFieldRows mirrors insertFieldRows for document_view_fields:
// one row per scalar leaf, recursing into lists with listIndex tracking
// position, carrying the same per-field operation_id provenance.
func (s *Store) insertViewFieldRows(ctx context.Context, viewID types.ViewID, name string, fv types.FieldValue, opID types.OperationID, listIndex int) error {
	if fv.Type == types.FieldTypeList {
		for i, item := range fv.List {
			if err := s.insertViewFieldRows(ctx, viewID, name, item, opID, i); err != nil {
				return err
			}
		}
		return nil
	}

	q := fmt.Sprintf(`INSERT INTO document_view_fields (view_id, name, field_type, value, list_index, operation_id)
		VALUES (%s, %s, %s, %s, %s, %s)`, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6))
	_, err := s.exec.ExecContext(ctx, q, string(viewID), name, string(fv.Type), fv.String(), listIndex, string(opID))
	if err != nil {
		return fmt.Errorf("store: insert document view field %q: %w", name, err)
	}
	return nil
}

// GetDocumentView loads a previously materialized view by id, used by the
// query planner when resolving pinned relations.
func (s *Store) GetDocumentView(ctx context.Context, id types.ViewID) (*types.DocumentView, error) {
	q := fmt.Sprintf(`SELECT schema_id FROM document_views WHERE view_id = %s`, s.ph(1))
	var schemaID string
	err := s.exec.QueryRowContext(ctx, q, string(id)).Scan(&schemaID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get document view: %w", err)
	}

	fieldsQ := fmt.Sprintf(`SELECT name, field_type, value, list_index, operation_id FROM document_view_fields WHERE view_id = %s ORDER BY name, list_index`, s.ph(1))
	rows, err := s.exec.QueryContext(ctx, fieldsQ, string(id))
	if err != nil {
		return nil, fmt.Errorf("store: get document view fields: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type rawRow struct {
		fieldType string
		value     string
		listIndex int
		opID      string
	}
	grouped := map[string][]rawRow{}
	order := map[string]bool{}
	var names []string
	for rows.Next() {
		var name string
		var r rawRow
		if err := rows.Scan(&name, &r.fieldType, &r.value, &r.listIndex, &r.opID); err != nil {
			return nil, fmt.Errorf("store: scan document view field: %w", err)
		}
		if !order[name] {
			order[name] = true
			names = append(names, name)
		}
		grouped[name] = append(grouped[name], r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fields := map[string]types.ViewField{}
	for _, name := range names {
		rowsForName := grouped[name]
		if len(rowsForName) == 1 && rowsForName[0].listIndex == 0 {
			v, err := scalarFromRow(rowsForName[0].fieldType, rowsForName[0].value)
			if err != nil {
				return nil, err
			}
			fields[name] = types.ViewField{Value: v, OperationID: types.OperationID(rowsForName[0].opID)}
			continue
		}
		items := make([]types.FieldValue, len(rowsForName))
		var opID types.OperationID
		for _, r := range rowsForName {
			v, err := scalarFromRow(r.fieldType, r.value)
			if err != nil {
				return nil, err
			}
			items[r.listIndex] = v
			opID = types.OperationID(r.opID)
		}
		fields[name] = types.ViewField{Value: types.ListValue(items), OperationID: opID}
	}

	return &types.DocumentView{ViewID: id, SchemaID: schemaID, Fields: fields}, nil
}

// PruneDocumentView deletes a view and its fields once no document row
// still points at it as current_view_id — the garbage_collection task's
// unit of work.
func (s *Store) PruneDocumentView(ctx context.Context, id types.ViewID) error {
	return s.WithTx(ctx, func(tx *Store) error {
		fieldsQ := fmt.Sprintf(`DELETE FROM document_view_fields WHERE view_id = %s`, tx.ph(1))
		if _, err := tx.exec.ExecContext(ctx, fieldsQ, string(id)); err != nil {
			return fmt.Errorf("store: prune view fields: %w", err)
		}
		viewQ := fmt.Sprintf(`DELETE FROM document_views WHERE view_id = %s`, tx.ph(1))
		if _, err := tx.exec.ExecContext(ctx, viewQ, string(id)); err != nil {
			return fmt.Errorf("store: prune view: %w", err)
		}
		return nil
	})
}

// IsViewReferenced reports whether any document still points at viewID as
// its current_view_id, the guard the garbage_collection task consults
// before pruning.
func (s *Store) IsViewReferenced(ctx context.Context, viewID types.ViewID) (bool, error) {
	q := fmt.Sprintf(`SELECT 1 FROM documents WHERE current_view_id = %s LIMIT 1`, s.ph(1))
	var one int
	err := s.exec.QueryRowContext(ctx, q, string(viewID)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: is view referenced: %w", err)
	}
	return true, nil
}

// ViewPinned reports whether any document_view_fields row of field_type
// pinned_relation still points at viewID, the transitive-pin guard the
// garbage_collection task applies before pruning a view.
func (s *Store) ViewPinned(ctx context.Context, viewID types.ViewID) (bool, error) {
	q := fmt.Sprintf(`SELECT 1 FROM document_view_fields WHERE field_type = %s AND value = %s LIMIT 1`, s.ph(1), s.ph(2))
	var one int
	err := s.exec.QueryRowContext(ctx, q, string(types.FieldTypePinnedRelation), string(viewID)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: view pinned: %w", err)
	}
	return true, nil
}

func boolLiteral(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
