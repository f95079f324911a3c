package materializer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aquadoggo-go/aquadoggo/internal/blob"
	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// Blob is the blob(view_id) task handler: once every blob_piece_v1 a
// blob_v1 document pins is materialized, stream them into the blob
// directory in pinned order and atomically rename into place. Missing pieces are a silent no-op; nothing in this
// package re-enqueues the blob task when a missing piece arrives later.
func (m *Materializer) Blob(ctx context.Context, task types.Task) error {
	if task.Input.ViewID == nil {
		return fmt.Errorf("materializer: blob task requires a view_id")
	}

	documentID, err := m.store.DocumentForView(ctx, *task.Input.ViewID)
	if err != nil {
		return types.NewTransientError(fmt.Errorf("materializer: resolve blob view owner: %w", err))
	}
	if documentID == "" {
		return nil
	}

	doc, err := m.store.GetDocument(ctx, documentID)
	if err != nil {
		return types.NewTransientError(fmt.Errorf("materializer: load blob document %s: %w", documentID, err))
	}
	if doc == nil || doc.IsDeleted {
		// Either already reduced-and-marked-deleted, or cascade-deleted by
		// garbage_collection and this is its final cleanup enqueue.
		if err := m.store.RemoveBlob(documentID); err != nil {
			return types.NewTransientError(fmt.Errorf("materializer: remove deleted blob %s: %w", documentID, err))
		}
		return nil
	}

	view, err := m.store.GetDocumentView(ctx, *task.Input.ViewID)
	if err != nil {
		return types.NewTransientError(fmt.Errorf("materializer: load view %s: %w", *task.Input.ViewID, err))
	}
	if view == nil || view.SchemaID != BlobV1 {
		return nil
	}

	piecesField, ok := view.Fields["pieces"]
	if !ok || piecesField.Value.Type != types.FieldTypeList {
		return fmt.Errorf("materializer: blob_v1 view %s missing list field \"pieces\"", view.ViewID)
	}

	readers := make([]io.Reader, 0, len(piecesField.Value.List))
	for _, item := range piecesField.Value.List {
		if item.Type != types.FieldTypePinnedRelation {
			return fmt.Errorf("materializer: blob_v1 view %s piece entry is not a pinned_relation", view.ViewID)
		}
		pieceView, err := m.store.GetDocumentView(ctx, item.PinnedRelation)
		if err != nil {
			return types.NewTransientError(fmt.Errorf("materializer: load blob piece %s: %w", item.PinnedRelation, err))
		}
		if pieceView == nil {
			// Incomplete: a piece hasn't arrived yet.
			return nil
		}
		if pieceView.SchemaID != BlobPieceV1 {
			return fmt.Errorf("materializer: %s is not a blob_piece_v1 view", item.PinnedRelation)
		}
		dataField, ok := pieceView.Fields["data"]
		if !ok || dataField.Value.Type != types.FieldTypeBytes {
			return fmt.Errorf("materializer: blob piece %s missing bytes field \"data\"", pieceView.ViewID)
		}
		readers = append(readers, bytes.NewReader(dataField.Value.Bytes))
	}

	writer, err := m.store.OpenBlobWriter(documentID)
	if err != nil {
		return types.NewTransientError(fmt.Errorf("materializer: open blob writer for %s: %w", documentID, err))
	}

	if _, err := blob.CopyPieces(writer, readers); err != nil {
		_ = writer.Close()
		_ = os.Remove(writer.Name())
		return types.NewTransientError(fmt.Errorf("materializer: stream blob %s: %w", documentID, err))
	}
	if err := writer.Close(); err != nil {
		_ = os.Remove(writer.Name())
		return types.NewTransientError(fmt.Errorf("materializer: close blob writer for %s: %w", documentID, err))
	}
	if err := m.store.FinalizeBlob(documentID); err != nil {
		return types.NewTransientError(fmt.Errorf("materializer: finalize blob %s: %w", documentID, err))
	}

	return nil
}
