package materializer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aquadoggo-go/aquadoggo/internal/crypto"
	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// foldState is the running CRDT reduction carried through a topological
// walk of a document's operations.
type foldState struct {
	fields    map[string]types.ViewField
	isDeleted bool
	schemaID  types.SchemaID
}

func newFoldState() *foldState {
	return &foldState{fields: map[string]types.ViewField{}}
}

func (f *foldState) apply(op *types.Operation) {
	switch op.Action {
	case types.ActionCreate:
		f.schemaID = op.SchemaID
		f.isDeleted = false
		for name, v := range op.Fields {
			f.fields[name] = types.ViewField{Value: v, OperationID: op.OperationID}
		}
	case types.ActionUpdate:
		for name, v := range op.Fields {
			f.fields[name] = types.ViewField{Value: v, OperationID: op.OperationID}
		}
	case types.ActionDelete:
		f.isDeleted = true
		f.fields = map[string]types.ViewField{}
	}
}

func (f *foldState) fieldsCopy() map[string]types.ViewField {
	out := make(map[string]types.ViewField, len(f.fields))
	for k, v := range f.fields {
		out[k] = v
	}
	return out
}

// topologicalSort orders ops by their previous-operation DAG using Kahn's
// algorithm, breaking ties by ascending operation_id so two nodes folding
// the same operation set always reach the same result.
func topologicalSort(ops []*types.Operation) ([]*types.Operation, error) {
	byID := make(map[types.OperationID]*types.Operation, len(ops))
	indegree := make(map[types.OperationID]int, len(ops))
	successors := make(map[types.OperationID][]types.OperationID, len(ops))

	for _, op := range ops {
		byID[op.OperationID] = op
		indegree[op.OperationID] = len(op.Previous)
	}
	for _, op := range ops {
		for _, p := range op.Previous {
			successors[p] = append(successors[p], op.OperationID)
		}
	}

	var ready []types.OperationID
	for id, n := range indegree {
		if n == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]*types.Operation, 0, len(ops))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		next := ready[0]
		ready = ready[1:]
		order = append(order, byID[next])

		for _, succ := range successors[next] {
			indegree[succ]--
			if indegree[succ] == 0 {
				ready = append(ready, succ)
			}
		}
	}

	if len(order) != len(ops) {
		return nil, fmt.Errorf("materializer: operation DAG has a cycle or a missing previous link (%d of %d ordered)", len(order), len(ops))
	}
	return order, nil
}

// Reduce is the reduce(document_id | view_id) task handler.
func (m *Materializer) Reduce(ctx context.Context, task types.Task) error {
	if task.Input.DocumentID != nil {
		return m.reduceDocument(ctx, *task.Input.DocumentID)
	}
	if task.Input.ViewID != nil {
		return m.reduceView(ctx, *task.Input.ViewID)
	}
	return fmt.Errorf("materializer: reduce task carries neither document_id nor view_id")
}

// reduceDocument walks the full operation DAG, persisting the current
// view and document row, and along the way records every intermediate
// DAG cut's view_id in the reverse index so a later pinned_relation to
// any of those historical views can be resolved back to this document.
func (m *Materializer) reduceDocument(ctx context.Context, documentID types.DocumentID) error {
	ops, err := m.store.GetOperationsForDocument(ctx, documentID)
	if err != nil {
		return types.NewTransientError(fmt.Errorf("materializer: load operations for %s: %w", documentID, err))
	}
	if len(ops) == 0 {
		return nil
	}

	order, err := topologicalSort(ops)
	if err != nil {
		return err
	}

	state := newFoldState()
	tips := map[types.OperationID]struct{}{}

	for _, op := range order {
		for _, p := range op.Previous {
			delete(tips, p)
		}
		tips[op.OperationID] = struct{}{}
		state.apply(op)

		viewID := crypto.ViewID(tipSlice(tips))
		if err := m.store.RecordViewOwner(ctx, viewID, documentID); err != nil {
			return types.NewTransientError(fmt.Errorf("materializer: record view owner: %w", err))
		}
	}

	viewID := crypto.ViewID(tipSlice(tips))
	return m.persistReduction(ctx, documentID, viewID, state, true)
}

// reduceView materializes a specific historical view_id, if the document
// it belongs to is already known (via the reverse index reduceDocument
// maintains) and the target cut can be found by replaying its DAG.
func (m *Materializer) reduceView(ctx context.Context, viewID types.ViewID) error {
	existing, err := m.store.GetDocumentView(ctx, viewID)
	if err != nil {
		return types.NewTransientError(fmt.Errorf("materializer: check existing view: %w", err))
	}
	if existing != nil {
		return nil
	}

	documentID, err := m.store.DocumentForView(ctx, viewID)
	if err != nil {
		return types.NewTransientError(fmt.Errorf("materializer: resolve view owner: %w", err))
	}
	if documentID == "" {
		// Owning document hasn't been reduced yet; a subsequent dependency
		// task re-enqueues this once it has.
		return nil
	}

	ops, err := m.store.GetOperationsForDocument(ctx, documentID)
	if err != nil {
		return types.NewTransientError(fmt.Errorf("materializer: load operations for %s: %w", documentID, err))
	}
	order, err := topologicalSort(ops)
	if err != nil {
		return err
	}

	state := newFoldState()
	tips := map[types.OperationID]struct{}{}

	for _, op := range order {
		for _, p := range op.Previous {
			delete(tips, p)
		}
		tips[op.OperationID] = struct{}{}
		state.apply(op)

		if crypto.ViewID(tipSlice(tips)) == viewID {
			return m.persistReduction(ctx, documentID, viewID, state, false)
		}
	}

	return fmt.Errorf("materializer: view %s not reachable from document %s's operation set", viewID, documentID)
}

// persistReduction writes the view (and, for the current cut, the
// document pointer) and chains the next tasks requires.
func (m *Materializer) persistReduction(ctx context.Context, documentID types.DocumentID, viewID types.ViewID, state *foldState, isCurrent bool) error {
	view := &types.DocumentView{ViewID: viewID, SchemaID: string(state.schemaID), Fields: state.fieldsCopy()}
	if err := m.store.InsertDocumentView(ctx, documentID, view); err != nil {
		return types.NewTransientError(fmt.Errorf("materializer: insert view %s: %w", viewID, err))
	}

	if isCurrent {
		doc := &types.Document{DocumentID: documentID, CurrentViewID: viewID, SchemaID: state.schemaID, IsDeleted: state.isDeleted, Edited: time.Now()}
		if owner, ok, err := m.store.AuthorForPayloadHash(ctx, types.Hash(documentID)); err != nil {
			return types.NewTransientError(fmt.Errorf("materializer: resolve owner for %s: %w", documentID, err))
		} else if ok {
			doc.Owner = owner
		}
		if err := m.store.InsertDocument(ctx, doc); err != nil {
			return types.NewTransientError(fmt.Errorf("materializer: insert document %s: %w", documentID, err))
		}
		if state.isDeleted {
			if err := m.enqueue(ctx, types.TaskGarbageCollection, docPtr(documentID), nil); err != nil {
				return types.NewTransientError(err)
			}
		}
		if state.schemaID == types.SchemaID(BlobV1) && !state.isDeleted {
			if err := m.enqueue(ctx, types.TaskBlob, nil, viewPtr(viewID)); err != nil {
				return types.NewTransientError(err)
			}
		}
	}

	if err := m.enqueue(ctx, types.TaskDependency, nil, viewPtr(viewID)); err != nil {
		return types.NewTransientError(err)
	}

	if state.schemaID == types.SchemaID(SchemaDefinitionV1) || state.schemaID == types.SchemaID(SchemaFieldDefinitionV1) {
		if err := m.enqueue(ctx, types.TaskSchema, nil, viewPtr(viewID)); err != nil {
			return types.NewTransientError(err)
		}
	}

	return nil
}

func tipSlice(tips map[types.OperationID]struct{}) []types.OperationID {
	out := make([]types.OperationID, 0, len(tips))
	for id := range tips {
		out = append(out, id)
	}
	return out
}
