package publish_test

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquadoggo-go/aquadoggo/internal/crypto"
	"github.com/aquadoggo-go/aquadoggo/internal/eventbus"
	"github.com/aquadoggo-go/aquadoggo/internal/publish"
	"github.com/aquadoggo-go/aquadoggo/internal/store"
	"github.com/aquadoggo-go/aquadoggo/internal/store/sqlite"
	"github.com/aquadoggo-go/aquadoggo/internal/types"
	"github.com/aquadoggo-go/aquadoggo/internal/validator"
	"github.com/aquadoggo-go/aquadoggo/internal/wire"
)

type noSchemas struct{}

func (noSchemas) Schema(types.SchemaID) (*types.Schema, bool) { return nil, false }

func newPipeline(t *testing.T) (*publish.Pipeline, *store.Store) {
	t.Helper()
	s, err := sqlite.Open(":memory:", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	v := validator.New(s, noSchemas{})
	return publish.New(s, v, eventbus.New()), s
}

func buildCreate(t *testing.T, seed []byte) (entryBytes, opBytes []byte) {
	t.Helper()
	op := &types.Operation{Action: types.ActionCreate, SchemaID: types.SchemaID("note_v1"),
		Fields: map[string]types.FieldValue{"title": types.StringValue("hi")}}
	opBytes, err := wire.EncodeOperation(op)
	require.NoError(t, err)

	pub, _, err := crypto.Sign(seed, []byte("throwaway"))
	require.NoError(t, err)

	entry := &types.Entry{PublicKey: pub, LogID: 0, SeqNum: 1, PayloadHash: crypto.Hash(opBytes), PayloadSize: uint64(len(opBytes))}
	signed, hash, err := wire.AssembleEntry(entry, seed)
	require.NoError(t, err)
	entry.EncodedBytes = signed
	entry.EntryHash = hash
	return signed, opBytes
}

func TestPublishCommitsEntryOperationLogAndTask(t *testing.T) {
	t.Parallel()
	p, s := newPipeline(t)
	ctx := context.Background()

	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 42
	entryBytes, opBytes := buildCreate(t, seed)

	result, err := p.Publish(ctx, entryBytes, opBytes)
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, types.SeqNum(1), result.SeqNum)

	assert.Nil(t, result.Backlink)

	tasks, err := s.GetTasks(ctx, types.TaskReduce)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].Input.DocumentID)
	assert.Equal(t, result.DocumentID, *tasks[0].Input.DocumentID)
}

func TestPublishIsIdempotentOnDuplicate(t *testing.T) {
	t.Parallel()
	p, _ := newPipeline(t)
	ctx := context.Background()

	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 5
	entryBytes, opBytes := buildCreate(t, seed)

	first, err := p.Publish(ctx, entryBytes, opBytes)
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	second, err := p.Publish(ctx, entryBytes, opBytes)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
}
