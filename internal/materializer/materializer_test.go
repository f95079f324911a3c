package materializer_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquadoggo-go/aquadoggo/internal/eventbus"
	"github.com/aquadoggo-go/aquadoggo/internal/materializer"
	"github.com/aquadoggo-go/aquadoggo/internal/schema"
	"github.com/aquadoggo-go/aquadoggo/internal/store"
	"github.com/aquadoggo-go/aquadoggo/internal/store/sqlite"
	"github.com/aquadoggo-go/aquadoggo/internal/taskqueue"
	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

func newHarness(t *testing.T) (*materializer.Materializer, *store.Store, *taskqueue.Queue, *schema.Registry) {
	t.Helper()
	s, err := sqlite.Open(":memory:", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	bus := eventbus.New()
	reg := schema.New(bus)
	q := taskqueue.New(s)
	m := materializer.New(s, q, reg, bus)
	return m, s, q, reg
}

func insertOp(t *testing.T, s *store.Store, op *types.Operation) {
	t.Helper()
	require.NoError(t, s.InsertOperation(context.Background(), op))
}

func TestReduceAppliesCreateAndUpdateLeftToRight(t *testing.T) {
	t.Parallel()
	m, s, _, _ := newHarness(t)
	ctx := context.Background()

	docID := types.DocumentID("doc-create-1")
	create := &types.Operation{
		OperationID: types.OperationID(docID),
		DocumentID:  docID,
		Action:      types.ActionCreate,
		SchemaID:    "note_v1",
		Fields: map[string]types.FieldValue{
			"title": types.StringValue("first draft"),
			"pinned": types.BoolValue(false),
		},
	}
	insertOp(t, s, create)

	update := &types.Operation{
		OperationID: "op-update-1",
		DocumentID:  docID,
		Action:      types.ActionUpdate,
		SchemaID:    "note_v1",
		Previous:    []types.OperationID{create.OperationID},
		Fields: map[string]types.FieldValue{
			"title": types.StringValue("final draft"),
		},
	}
	insertOp(t, s, update)

	require.NoError(t, m.Reduce(ctx, types.Task{Name: types.TaskReduce, Input: types.TaskInput{DocumentID: &docID}}))

	doc, err := s.GetDocument(ctx, docID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.False(t, doc.IsDeleted)

	view, err := s.GetDocumentView(ctx, doc.CurrentViewID)
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, "final draft", view.Fields["title"].Value.Str)
	assert.Equal(t, update.OperationID, view.Fields["title"].OperationID)
	assert.False(t, view.Fields["pinned"].Value.Bool)
}

func TestReduceMarksDeletedAndEnqueuesGarbageCollection(t *testing.T) {
	t.Parallel()
	m, s, q, _ := newHarness(t)
	ctx := context.Background()

	docID := types.DocumentID("doc-delete-1")
	create := &types.Operation{
		OperationID: types.OperationID(docID),
		DocumentID:  docID,
		Action:      types.ActionCreate,
		SchemaID:    "note_v1",
		Fields:      map[string]types.FieldValue{"title": types.StringValue("x")},
	}
	insertOp(t, s, create)
	del := &types.Operation{
		OperationID: "op-delete-1",
		DocumentID:  docID,
		Action:      types.ActionDelete,
		SchemaID:    "note_v1",
		Previous:    []types.OperationID{create.OperationID},
	}
	insertOp(t, s, del)

	require.NoError(t, m.Reduce(ctx, types.Task{Name: types.TaskReduce, Input: types.TaskInput{DocumentID: &docID}}))

	doc, err := s.GetDocument(ctx, docID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.True(t, doc.IsDeleted)

	tasks, err := s.GetTasks(ctx, types.TaskGarbageCollection)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].Input.DocumentID)
	assert.Equal(t, docID, *tasks[0].Input.DocumentID)

	_ = q
}

func TestDependencyEnqueuesMissingRelation(t *testing.T) {
	t.Parallel()
	m, s, _, _ := newHarness(t)
	ctx := context.Background()

	referrerID := types.DocumentID("doc-referrer")
	missingID := types.DocumentID("doc-missing")
	create := &types.Operation{
		OperationID: types.OperationID(referrerID),
		DocumentID:  referrerID,
		Action:      types.ActionCreate,
		SchemaID:    "link_v1",
		Fields: map[string]types.FieldValue{
			"target": types.RelationValue(missingID),
		},
	}
	insertOp(t, s, create)

	require.NoError(t, m.Reduce(ctx, types.Task{Name: types.TaskReduce, Input: types.TaskInput{DocumentID: &referrerID}}))

	doc, err := s.GetDocument(ctx, referrerID)
	require.NoError(t, err)
	require.NotNil(t, doc)

	require.NoError(t, m.Dependency(ctx, types.Task{Name: types.TaskDependency, Input: types.TaskInput{ViewID: &doc.CurrentViewID}}))

	tasks, err := s.GetTasks(ctx, types.TaskReduce)
	require.NoError(t, err)

	found := false
	for _, tk := range tasks {
		if tk.Input.DocumentID != nil && *tk.Input.DocumentID == missingID {
			found = true
		}
	}
	assert.True(t, found, "expected a reduce task enqueued for the missing relation target")
}

func TestSchemaBuildsFromDefinitionAndFieldViews(t *testing.T) {
	t.Parallel()
	m, s, _, reg := newHarness(t)
	ctx := context.Background()

	fieldDocID := types.DocumentID("doc-field-1")
	fieldCreate := &types.Operation{
		OperationID: types.OperationID(fieldDocID),
		DocumentID:  fieldDocID,
		Action:      types.ActionCreate,
		SchemaID:    types.SchemaID(materializer.SchemaFieldDefinitionV1),
		Fields: map[string]types.FieldValue{
			"name": types.StringValue("title"),
			"type": types.StringValue(string(types.FieldTypeString)),
		},
	}
	insertOp(t, s, fieldCreate)
	require.NoError(t, m.Reduce(ctx, types.Task{Name: types.TaskReduce, Input: types.TaskInput{DocumentID: &fieldDocID}}))
	fieldDoc, err := s.GetDocument(ctx, fieldDocID)
	require.NoError(t, err)
	require.NotNil(t, fieldDoc)

	defDocID := types.DocumentID("doc-def-1")
	defCreate := &types.Operation{
		OperationID: types.OperationID(defDocID),
		DocumentID:  defDocID,
		Action:      types.ActionCreate,
		SchemaID:    types.SchemaID(materializer.SchemaDefinitionV1),
		Fields: map[string]types.FieldValue{
			"name":        types.StringValue("note"),
			"description": types.StringValue("a simple note"),
			"fields":      types.ListValue([]types.FieldValue{types.PinnedRelationValue(fieldDoc.CurrentViewID)}),
		},
	}
	insertOp(t, s, defCreate)
	require.NoError(t, m.Reduce(ctx, types.Task{Name: types.TaskReduce, Input: types.TaskInput{DocumentID: &defDocID}}))

	defDoc, err := s.GetDocument(ctx, defDocID)
	require.NoError(t, err)
	require.NotNil(t, defDoc)

	require.NoError(t, m.Schema(ctx, types.Task{Name: types.TaskSchema, Input: types.TaskInput{ViewID: &defDoc.CurrentViewID}}))

	all := reg.All()
	require.Len(t, all, 1)
	assert.Equal(t, "note", all[0].Name)
	require.Len(t, all[0].Fields, 1)
	assert.Equal(t, "title", all[0].Fields[0].Key)
	assert.Equal(t, types.FieldTypeString, all[0].Fields[0].Type)
}

func TestBlobAssemblesPiecesInPinnedOrder(t *testing.T) {
	t.Parallel()
	m, s, _, _ := newHarness(t)
	ctx := context.Background()

	pieceA := insertBlobPiece(t, ctx, m, s, "doc-piece-a", []byte("hello "))
	pieceB := insertBlobPiece(t, ctx, m, s, "doc-piece-b", []byte("world"))

	blobDocID := types.DocumentID("doc-blob-1")
	blobCreate := &types.Operation{
		OperationID: types.OperationID(blobDocID),
		DocumentID:  blobDocID,
		Action:      types.ActionCreate,
		SchemaID:    types.SchemaID(materializer.BlobV1),
		Fields: map[string]types.FieldValue{
			"pieces": types.ListValue([]types.FieldValue{
				types.PinnedRelationValue(pieceA),
				types.PinnedRelationValue(pieceB),
			}),
		},
	}
	insertOp(t, s, blobCreate)
	require.NoError(t, m.Reduce(ctx, types.Task{Name: types.TaskReduce, Input: types.TaskInput{DocumentID: &blobDocID}}))

	blobDoc, err := s.GetDocument(ctx, blobDocID)
	require.NoError(t, err)
	require.NotNil(t, blobDoc)

	require.NoError(t, m.Blob(ctx, types.Task{Name: types.TaskBlob, Input: types.TaskInput{ViewID: &blobDoc.CurrentViewID}}))
	assert.True(t, s.BlobExists(blobDocID))

	data, err := os.ReadFile(s.BlobPath(blobDocID))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestReduceEnqueuesBlobTaskForBlobV1Document(t *testing.T) {
	t.Parallel()
	m, s, q, _ := newHarness(t)
	ctx := context.Background()

	pieceA := insertBlobPiece(t, ctx, m, s, "doc-piece-enqueue-a", []byte("hi"))

	blobDocID := types.DocumentID("doc-blob-enqueue-1")
	blobCreate := &types.Operation{
		OperationID: types.OperationID(blobDocID),
		DocumentID:  blobDocID,
		Action:      types.ActionCreate,
		SchemaID:    types.SchemaID(materializer.BlobV1),
		Fields: map[string]types.FieldValue{
			"pieces": types.ListValue([]types.FieldValue{types.PinnedRelationValue(pieceA)}),
		},
	}
	insertOp(t, s, blobCreate)
	require.NoError(t, m.Reduce(ctx, types.Task{Name: types.TaskReduce, Input: types.TaskInput{DocumentID: &blobDocID}}))

	select {
	case task := <-q.Channel(types.TaskBlob):
		assert.Equal(t, types.TaskBlob, task.Name)
		require.NotNil(t, task.Input.ViewID)
	default:
		t.Fatal("expected a blob task to be enqueued for a materialized blob_v1 document")
	}
}

func insertBlobPiece(t *testing.T, ctx context.Context, m *materializer.Materializer, s *store.Store, id string, data []byte) types.ViewID {
	t.Helper()
	docID := types.DocumentID(id)
	op := &types.Operation{
		OperationID: types.OperationID(docID),
		DocumentID:  docID,
		Action:      types.ActionCreate,
		SchemaID:    types.SchemaID(materializer.BlobPieceV1),
		Fields:      map[string]types.FieldValue{"data": types.BytesValue(data)},
	}
	insertOp(t, s, op)
	require.NoError(t, m.Reduce(ctx, types.Task{Name: types.TaskReduce, Input: types.TaskInput{DocumentID: &docID}}))
	doc, err := s.GetDocument(ctx, docID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	return doc.CurrentViewID
}

func TestGarbageCollectionPrunesUnpinnedView(t *testing.T) {
	t.Parallel()
	m, s, _, _ := newHarness(t)
	ctx := context.Background()

	docID := types.DocumentID("doc-gc-1")
	create := &types.Operation{
		OperationID: types.OperationID(docID),
		DocumentID:  docID,
		Action:      types.ActionCreate,
		SchemaID:    "note_v1",
		Fields:      map[string]types.FieldValue{"title": types.StringValue("x")},
	}
	insertOp(t, s, create)
	del := &types.Operation{
		OperationID: "op-gc-delete-1",
		DocumentID:  docID,
		Action:      types.ActionDelete,
		SchemaID:    "note_v1",
		Previous:    []types.OperationID{create.OperationID},
	}
	insertOp(t, s, del)
	require.NoError(t, m.Reduce(ctx, types.Task{Name: types.TaskReduce, Input: types.TaskInput{DocumentID: &docID}}))

	require.NoError(t, m.GarbageCollection(ctx, types.Task{Name: types.TaskGarbageCollection, Input: types.TaskInput{DocumentID: &docID}}))

	doc, err := s.GetDocument(ctx, docID)
	require.NoError(t, err)
	assert.Nil(t, doc)
}
