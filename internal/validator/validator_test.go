package validator_test

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquadoggo-go/aquadoggo/internal/crypto"
	"github.com/aquadoggo-go/aquadoggo/internal/store"
	"github.com/aquadoggo-go/aquadoggo/internal/store/sqlite"
	"github.com/aquadoggo-go/aquadoggo/internal/types"
	"github.com/aquadoggo-go/aquadoggo/internal/validator"
	"github.com/aquadoggo-go/aquadoggo/internal/wire"
)

type noSchemas struct{}

func (noSchemas) Schema(types.SchemaID) (*types.Schema, bool) { return nil, false }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := sqlite.Open(":memory:", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func signedCreate(t *testing.T, seed []byte) (entryBytes, operationBytes []byte, pub types.PublicKey) {
	t.Helper()
	op := &types.Operation{Action: types.ActionCreate, SchemaID: types.SchemaID("note_v1"),
		Fields: map[string]types.FieldValue{"title": types.StringValue("hello")}}
	opBytes, err := wire.EncodeOperation(op)
	require.NoError(t, err)

	pub, _, err = crypto.Sign(seed, []byte("unused"))
	require.NoError(t, err)

	entry := &types.Entry{
		PublicKey:   pub,
		LogID:       0,
		SeqNum:      1,
		PayloadHash: crypto.Hash(opBytes),
		PayloadSize: uint64(len(opBytes)),
	}
	signed, hash, err := wire.AssembleEntry(entry, seed)
	require.NoError(t, err)
	entry.EncodedBytes = signed
	entry.EntryHash = hash
	return signed, opBytes, pub
}

func TestValidatePublishAcceptsCreate(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	v := validator.New(s, noSchemas{})

	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 7
	entryBytes, opBytes, pub := signedCreate(t, seed)

	decoded, err := v.ValidatePublish(context.Background(), entryBytes, opBytes)
	require.NoError(t, err)
	assert.Equal(t, types.ActionCreate, decoded.Operation.Action)
	assert.Equal(t, pub, decoded.Entry.PublicKey)
	assert.Equal(t, decoded.DocumentID, types.DocumentID(decoded.Operation.OperationID))
}

func TestValidatePublishRejectsBadSignature(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	v := validator.New(s, noSchemas{})

	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 9
	entryBytes, opBytes, _ := signedCreate(t, seed)
	// Corrupt the signature bytes (the final byte of the framed entry).
	tampered := append([]byte(nil), entryBytes...)
	tampered[len(tampered)-1] ^= 0xFF

	_, err := v.ValidatePublish(context.Background(), tampered, opBytes)
	require.Error(t, err)
	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, types.ErrKindInvalidSignature, ve.Kind)
}

func TestValidatePublishDetectsDuplicate(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	v := validator.New(s, noSchemas{})
	ctx := context.Background()

	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 3
	entryBytes, opBytes, _ := signedCreate(t, seed)

	decoded, err := v.ValidatePublish(ctx, entryBytes, opBytes)
	require.NoError(t, err)
	require.NoError(t, s.InsertEntry(ctx, decoded.Entry))

	_, err = v.ValidatePublish(ctx, entryBytes, opBytes)
	require.Error(t, err)
	assert.True(t, types.IsDuplicate(err))
}

func TestValidatePublishRejectsPayloadMismatch(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	v := validator.New(s, noSchemas{})

	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 1
	entryBytes, _, _ := signedCreate(t, seed)
	otherOp := &types.Operation{Action: types.ActionCreate, SchemaID: types.SchemaID("note_v1")}
	otherOpBytes, err := wire.EncodeOperation(otherOp)
	require.NoError(t, err)

	_, err = v.ValidatePublish(context.Background(), entryBytes, otherOpBytes)
	require.Error(t, err)
	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, types.ErrKindPayloadMismatch, ve.Kind)
}
