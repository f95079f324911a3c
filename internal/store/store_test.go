package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquadoggo-go/aquadoggo/internal/store"
	"github.com/aquadoggo-go/aquadoggo/internal/store/sqlite"
	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := sqlite.Open(":memory:", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnsureLogAssignsMonotonicIDsPerAuthor(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	var pk types.PublicKey
	copy(pk[:], []byte("author-one-32-bytes-padding!!!!"))

	first, err := s.EnsureLog(ctx, pk, types.DocumentID("doc-a"), types.SchemaID("note_v1"))
	require.NoError(t, err)
	assert.Equal(t, types.LogID(0), first)

	second, err := s.EnsureLog(ctx, pk, types.DocumentID("doc-b"), types.SchemaID("note_v1"))
	require.NoError(t, err)
	assert.Equal(t, types.LogID(1), second)

	// Re-querying the same (author, document) pair returns the same log_id.
	again, err := s.EnsureLog(ctx, pk, types.DocumentID("doc-a"), types.SchemaID("note_v1"))
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestInsertAndGetEntry(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	var pk types.PublicKey
	copy(pk[:], []byte("author-two-32-bytes-padding!!!!!"))

	entry := &types.Entry{
		PublicKey:    pk,
		LogID:        0,
		SeqNum:       1,
		EntryHash:    types.Hash("hash-1"),
		EncodedBytes: []byte("entry-bytes"),
		PayloadHash:  types.Hash("payload-1"),
		PayloadSize:  11,
		Signature:    []byte("sig"),
	}
	require.NoError(t, s.InsertEntry(ctx, entry))

	got, err := s.GetEntry(ctx, types.Hash("hash-1"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.PublicKey, got.PublicKey)
	assert.Equal(t, entry.SeqNum, got.SeqNum)
	assert.Equal(t, entry.PayloadHash, got.PayloadHash)

	latest, err := s.GetLatestEntry(ctx, pk, 0)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, types.SeqNum(1), latest.SeqNum)
}

func TestGetEntriesNewerThanOrdersAscending(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	var pk types.PublicKey
	copy(pk[:], []byte("author-three-32-byte-padding!!!!"))

	for i := uint64(1); i <= 3; i++ {
		e := &types.Entry{
			PublicKey:    pk,
			LogID:        0,
			SeqNum:       types.SeqNum(i),
			EntryHash:    types.Hash("hash-" + string(rune('0'+i))),
			EncodedBytes: []byte("bytes"),
			PayloadHash:  types.Hash("payload"),
			PayloadSize:  5,
			Signature:    []byte("sig"),
		}
		require.NoError(t, s.InsertEntry(ctx, e))
	}

	entries, err := s.GetEntriesNewerThan(ctx, pk, 0, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, types.SeqNum(2), entries[0].SeqNum)
	assert.Equal(t, types.SeqNum(3), entries[1].SeqNum)
}

func TestInsertOperationRoundTripsFields(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	op := &types.Operation{
		OperationID: types.OperationID("op-1"),
		DocumentID:  types.DocumentID("op-1"),
		Action:      types.ActionCreate,
		SchemaID:    types.SchemaID("note_v1"),
		Fields: map[string]types.FieldValue{
			"title": types.StringValue("hello"),
			"tags":  types.ListValue([]types.FieldValue{types.StringValue("a"), types.StringValue("b")}),
		},
	}
	require.NoError(t, s.InsertOperation(ctx, op))

	got, err := s.GetOperation(ctx, op.OperationID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Fields["title"].Equal(types.StringValue("hello")))
	assert.True(t, got.Fields["tags"].Equal(op.Fields["tags"]))
}

func TestTaskDedupeOnNameAndInput(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	doc := types.DocumentID("doc-x")
	task := types.Task{Name: types.TaskReduce, Input: types.TaskInput{DocumentID: &doc}}

	require.NoError(t, s.InsertTask(ctx, task))
	require.NoError(t, s.InsertTask(ctx, task))

	tasks, err := s.GetTasks(ctx, types.TaskReduce)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	require.NoError(t, s.RemoveTask(ctx, task))
	tasks, err = s.GetTasks(ctx, types.TaskReduce)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestDocumentViewPruneRemovesFields(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	view := &types.DocumentView{
		ViewID:   types.ViewID("view-1"),
		SchemaID: "note_v1",
		Fields: map[string]types.ViewField{
			"title": {Value: types.StringValue("hi"), OperationID: types.OperationID("op-1")},
		},
	}
	require.NoError(t, s.InsertDocumentView(ctx, types.DocumentID("doc-1"), view))

	got, err := s.GetDocumentView(ctx, view.ViewID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Fields["title"].Value.Equal(types.StringValue("hi")))

	require.NoError(t, s.PruneDocumentView(ctx, view.ViewID))
	got, err = s.GetDocumentView(ctx, view.ViewID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
