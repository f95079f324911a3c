package materializer

import (
	"context"
	"fmt"

	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// WarmStart rebuilds the in-memory schema registry from every
// schema_definition_v1 document already committed to the store, so a
// freshly started process (or a one-shot CLI command) can resolve schemas
// materialized by an earlier run without waiting for a new operation to
// touch them.
func (m *Materializer) WarmStart(ctx context.Context) error {
	views, err := m.store.ListDocumentViewsBySchema(ctx, types.SchemaID(SchemaDefinitionV1))
	if err != nil {
		return fmt.Errorf("materializer: warm start: %w", err)
	}
	for _, v := range views {
		v := v
		if err := m.Schema(ctx, types.Task{Name: types.TaskSchema, Input: types.TaskInput{ViewID: &v}}); err != nil {
			return fmt.Errorf("materializer: warm start schema %s: %w", v, err)
		}
	}
	return nil
}

// Schema is the schema(view_id) task handler: attempts to build a
// types.Schema from a schema_definition_v1 view plus its
// schema_field_definition_v1 pinned relations, registering the result on
// success.
func (m *Materializer) Schema(ctx context.Context, task types.Task) error {
	if task.Input.ViewID == nil {
		return fmt.Errorf("materializer: schema task requires a view_id")
	}

	view, err := m.store.GetDocumentView(ctx, *task.Input.ViewID)
	if err != nil {
		return types.NewTransientError(fmt.Errorf("materializer: load view %s: %w", *task.Input.ViewID, err))
	}
	if view == nil {
		return nil
	}
	if view.SchemaID != SchemaDefinitionV1 {
		// A schema_field_definition_v1 view alone can't build a schema;
		// the owning schema_definition_v1's own schema task does the work
		// once its pinned relations (this view among them) resolve.
		return nil
	}

	nameField, ok := view.Fields["name"]
	if !ok || nameField.Value.Type != types.FieldTypeString {
		return fmt.Errorf("materializer: schema_definition_v1 view %s missing string field \"name\"", view.ViewID)
	}
	descriptionField := view.Fields["description"]

	fieldsField, ok := view.Fields["fields"]
	if !ok || fieldsField.Value.Type != types.FieldTypeList {
		return fmt.Errorf("materializer: schema_definition_v1 view %s missing list field \"fields\"", view.ViewID)
	}

	schemaFields := make([]types.SchemaField, 0, len(fieldsField.Value.List))
	for _, item := range fieldsField.Value.List {
		if item.Type != types.FieldTypePinnedRelation {
			return fmt.Errorf("materializer: schema_definition_v1 view %s field entry is not a pinned_relation", view.ViewID)
		}
		fieldView, err := m.store.GetDocumentView(ctx, item.PinnedRelation)
		if err != nil {
			return types.NewTransientError(fmt.Errorf("materializer: load field definition %s: %w", item.PinnedRelation, err))
		}
		if fieldView == nil {
			// Not materialized yet. The dependency task does not
			// re-enqueue schema tasks; this definition is retried when
			// it is reduced again or at the next WarmStart.
			return nil
		}
		if fieldView.SchemaID != SchemaFieldDefinitionV1 {
			return fmt.Errorf("materializer: %s is not a schema_field_definition_v1 view", item.PinnedRelation)
		}

		fieldName, ok := fieldView.Fields["name"]
		if !ok || fieldName.Value.Type != types.FieldTypeString {
			return fmt.Errorf("materializer: field definition %s missing string field \"name\"", fieldView.ViewID)
		}
		fieldType, ok := fieldView.Fields["type"]
		if !ok || fieldType.Value.Type != types.FieldTypeString {
			return fmt.Errorf("materializer: field definition %s missing string field \"type\"", fieldView.ViewID)
		}

		schemaFields = append(schemaFields, types.SchemaField{
			Key:  fieldName.Value.Str,
			Type: types.SchemaFieldType(fieldType.Value.Str),
		})
	}

	schemaID := types.SchemaID(fmt.Sprintf("%s_%s", nameField.Value.Str, view.ViewID))
	built := &types.Schema{
		SchemaID:    schemaID,
		Name:        nameField.Value.Str,
		Description: descriptionField.Value.Str,
		Fields:      schemaFields,
	}

	if err := m.registry.Upsert(ctx, built); err != nil {
		return types.NewTransientError(fmt.Errorf("materializer: register schema %s: %w", schemaID, err))
	}
	return nil
}
