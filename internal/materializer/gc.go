package materializer

import (
	"context"
	"fmt"

	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// GarbageCollection is the garbage_collection(document_id | view_id) task
// handler.
func (m *Materializer) GarbageCollection(ctx context.Context, task types.Task) error {
	if task.Input.ViewID != nil {
		return m.gcView(ctx, *task.Input.ViewID)
	}
	if task.Input.DocumentID != nil {
		return m.gcDocument(ctx, *task.Input.DocumentID)
	}
	return fmt.Errorf("materializer: garbage_collection task carries neither document_id nor view_id")
}

// gcView deletes a view's rows once nothing still pins it.
func (m *Materializer) gcView(ctx context.Context, viewID types.ViewID) error {
	referenced, err := m.store.IsViewReferenced(ctx, viewID)
	if err != nil {
		return types.NewTransientError(fmt.Errorf("materializer: check view referenced %s: %w", viewID, err))
	}
	if referenced {
		return nil
	}
	pinned, err := m.store.ViewPinned(ctx, viewID)
	if err != nil {
		return types.NewTransientError(fmt.Errorf("materializer: check view pinned %s: %w", viewID, err))
	}
	if pinned {
		return nil
	}
	if err := m.store.PruneDocumentView(ctx, viewID); err != nil {
		return types.NewTransientError(fmt.Errorf("materializer: prune view %s: %w", viewID, err))
	}
	return nil
}

// gcDocument cascade-deletes a deleted document once no pinned relation
// still references any of its views, enqueueing a final blob cleanup for
// blob_v1 documents.
func (m *Materializer) gcDocument(ctx context.Context, documentID types.DocumentID) error {
	doc, err := m.store.GetDocument(ctx, documentID)
	if err != nil {
		return types.NewTransientError(fmt.Errorf("materializer: load document %s: %w", documentID, err))
	}
	if doc == nil || !doc.IsDeleted {
		return nil
	}

	pinned, err := m.store.ViewPinned(ctx, doc.CurrentViewID)
	if err != nil {
		return types.NewTransientError(fmt.Errorf("materializer: check document view pinned %s: %w", doc.CurrentViewID, err))
	}
	if pinned {
		return nil
	}

	wasBlob := doc.SchemaID == types.SchemaID(BlobV1)

	if err := m.store.DeleteDocument(ctx, documentID); err != nil {
		return types.NewTransientError(fmt.Errorf("materializer: delete document %s: %w", documentID, err))
	}

	if wasBlob {
		if err := m.enqueue(ctx, types.TaskBlob, nil, viewPtr(doc.CurrentViewID)); err != nil {
			return types.NewTransientError(err)
		}
	}

	return nil
}
