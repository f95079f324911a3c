package materializer

import (
	"context"
	"fmt"

	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// Dependency is the dependency(view_id) task handler: for every relation
// or pinned_relation field the view holds, enqueue a reduce task for
// whatever isn't materialized yet. Re-running is always safe — once every
// reference resolves there is nothing left to enqueue.
func (m *Materializer) Dependency(ctx context.Context, task types.Task) error {
	if task.Input.ViewID == nil {
		return fmt.Errorf("materializer: dependency task requires a view_id")
	}
	view, err := m.store.GetDocumentView(ctx, *task.Input.ViewID)
	if err != nil {
		return types.NewTransientError(fmt.Errorf("materializer: load view %s: %w", *task.Input.ViewID, err))
	}
	if view == nil {
		// Not materialized yet; the reduce task that produces it will
		// re-trigger this dependency task on success.
		return nil
	}

	for _, field := range view.Fields {
		documents, views := field.Value.Relations()
		for _, docID := range documents {
			present, err := m.store.GetDocument(ctx, docID)
			if err != nil {
				return types.NewTransientError(fmt.Errorf("materializer: check document %s: %w", docID, err))
			}
			if present == nil {
				if err := m.enqueue(ctx, types.TaskReduce, docPtr(docID), nil); err != nil {
					return types.NewTransientError(err)
				}
			}
		}
		for _, viewID := range views {
			present, err := m.store.GetDocumentView(ctx, viewID)
			if err != nil {
				return types.NewTransientError(fmt.Errorf("materializer: check view %s: %w", viewID, err))
			}
			if present == nil {
				if err := m.enqueue(ctx, types.TaskReduce, nil, viewPtr(viewID)); err != nil {
					return types.NewTransientError(err)
				}
			}
		}
	}

	return nil
}
