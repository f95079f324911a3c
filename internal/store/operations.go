package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aquadoggo-go/aquadoggo/internal/crypto"
	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// InsertOperation persists an operation row and one operation_fields_v1
// row per scalar leaf value (lists are flattened with a list_index),
// computing each field's deterministic cursor via internal/crypto.
func (s *Store) InsertOperation(ctx context.Context, op *types.Operation) error {
	previous, err := json.Marshal(op.Previous)
	if err != nil {
		return fmt.Errorf("store: marshal previous: %w", err)
	}

	q := fmt.Sprintf(`INSERT INTO operations_v1 (operation_id, document_id, action, schema_id, previous, encoded_bytes)
		VALUES (%s, %s, %s, %s, %s, %s)`, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6))
	_, err = s.exec.ExecContext(ctx, q,
		string(op.OperationID), string(op.DocumentID), string(op.Action), string(op.SchemaID), string(previous), op.EncodedBytes)
	if err != nil {
		return fmt.Errorf("store: insert operation: %w", err)
	}

	for name, fv := range op.Fields {
		if err := s.insertFieldRows(ctx, op.OperationID, name, fv, 0); err != nil {
			return err
		}
	}
	return nil
}

// insertFieldRows inserts one row per scalar value, recursing into lists
// with listIndex tracking position. A non-list field uses listIndex 0 and
// a single row.
func (s *Store) insertFieldRows(ctx context.Context, opID types.OperationID, name string, fv types.FieldValue, listIndex int) error {
	if fv.Type == types.FieldTypeList {
		for i, item := range fv.List {
			if err := s.insertFieldRows(ctx, opID, name, item, i); err != nil {
				return err
			}
		}
		return nil
	}

	cursor := crypto.Cursor(opID, name, listIndex)
	q := fmt.Sprintf(`INSERT INTO operation_fields_v1 (operation_id, name, field_type, value, list_index, cursor)
		VALUES (%s, %s, %s, %s, %s, %s)`, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6))
	_, err := s.exec.ExecContext(ctx, q, string(opID), name, string(fv.Type), fv.String(), listIndex, string(cursor))
	if err != nil {
		return fmt.Errorf("store: insert field %q: %w", name, err)
	}
	return nil
}

// GetOperation loads an operation and its fields back into a types.Operation.
func (s *Store) GetOperation(ctx context.Context, id types.OperationID) (*types.Operation, error) {
	q := fmt.Sprintf(`SELECT document_id, action, schema_id, previous, encoded_bytes FROM operations_v1 WHERE operation_id = %s`, s.ph(1))
	var doc, action, schemaID, previousJSON string
	var encodedBytes []byte
	err := s.exec.QueryRowContext(ctx, q, string(id)).Scan(&doc, &action, &schemaID, &previousJSON, &encodedBytes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get operation: %w", err)
	}
	var previous []types.OperationID
	if err := json.Unmarshal([]byte(previousJSON), &previous); err != nil {
		return nil, fmt.Errorf("store: unmarshal previous: %w", err)
	}

	op := &types.Operation{
		OperationID:  id,
		DocumentID:   types.DocumentID(doc),
		Action:       types.Action(action),
		SchemaID:     types.SchemaID(schemaID),
		Previous:     previous,
		EncodedBytes: encodedBytes,
	}
	fields, err := s.loadFieldsForOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	op.Fields = fields
	return op, nil
}

// GetOperationsForDocument returns every operation sharing documentID as
// their root, the input the materializer's reduce task folds over.
func (s *Store) GetOperationsForDocument(ctx context.Context, documentID types.DocumentID) ([]*types.Operation, error) {
	q := fmt.Sprintf(`SELECT operation_id FROM operations_v1 WHERE document_id = %s`, s.ph(1))
	rows, err := s.exec.QueryContext(ctx, q, string(documentID))
	if err != nil {
		return nil, fmt.Errorf("store: list document operations: %w", err)
	}
	var ids []types.OperationID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("store: scan operation id: %w", err)
		}
		ids = append(ids, types.OperationID(id))
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	out := make([]*types.Operation, 0, len(ids))
	for _, id := range ids {
		op, err := s.GetOperation(ctx, id)
		if err != nil {
			return nil, err
		}
		if op != nil {
			out = append(out, op)
		}
	}
	return out, nil
}

func (s *Store) loadFieldsForOperation(ctx context.Context, id types.OperationID) (map[string]types.FieldValue, error) {
	q := fmt.Sprintf(`SELECT name, field_type, value, list_index FROM operation_fields_v1 WHERE operation_id = %s ORDER BY name, list_index`, s.ph(1))
	rows, err := s.exec.QueryContext(ctx, q, string(id))
	if err != nil {
		return nil, fmt.Errorf("store: load fields: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type rawRow struct {
		name      string
		fieldType string
		value     string
		listIndex int
	}
	grouped := map[string][]rawRow{}
	order := map[string]bool{}
	var names []string
	for rows.Next() {
		var r rawRow
		if err := rows.Scan(&r.name, &r.fieldType, &r.value, &r.listIndex); err != nil {
			return nil, fmt.Errorf("store: scan field row: %w", err)
		}
		if !order[r.name] {
			order[r.name] = true
			names = append(names, r.name)
		}
		grouped[r.name] = append(grouped[r.name], r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]types.FieldValue, len(names))
	for _, name := range names {
		rowsForName := grouped[name]
		if len(rowsForName) == 1 && rowsForName[0].listIndex == 0 {
			v, err := scalarFromRow(rowsForName[0].fieldType, rowsForName[0].value)
			if err != nil {
				return nil, err
			}
			out[name] = v
			continue
		}
		items := make([]types.FieldValue, len(rowsForName))
		for _, r := range rowsForName {
			v, err := scalarFromRow(r.fieldType, r.value)
			if err != nil {
				return nil, err
			}
			items[r.listIndex] = v
		}
		out[name] = types.ListValue(items)
	}
	return out, nil
}

func scalarFromRow(fieldType, value string) (types.FieldValue, error) {
	switch types.SchemaFieldType(fieldType) {
	case types.FieldTypeBool:
		return types.BoolValue(value == "true"), nil
	case types.FieldTypeInt:
		return types.IntValue(value), nil
	case types.FieldTypeFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return types.FieldValue{}, fmt.Errorf("store: parse float field: %w", err)
		}
		return types.FloatValue(f), nil
	case types.FieldTypeString:
		return types.StringValue(value), nil
	case types.FieldTypeBytes:
		return types.BytesValue([]byte(value)), nil
	case types.FieldTypeRelation:
		return types.RelationValue(types.DocumentID(value)), nil
	case types.FieldTypePinnedRelation:
		return types.PinnedRelationValue(types.ViewID(value)), nil
	default:
		return types.FieldValue{}, fmt.Errorf("store: unknown field type %q", fieldType)
	}
}
