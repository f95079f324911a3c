package replication_test

import (
	"context"
	"crypto/ed25519"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquadoggo-go/aquadoggo/internal/config"
	"github.com/aquadoggo-go/aquadoggo/internal/crypto"
	"github.com/aquadoggo-go/aquadoggo/internal/eventbus"
	"github.com/aquadoggo-go/aquadoggo/internal/publish"
	"github.com/aquadoggo-go/aquadoggo/internal/replication"
	"github.com/aquadoggo-go/aquadoggo/internal/schema"
	"github.com/aquadoggo-go/aquadoggo/internal/store"
	"github.com/aquadoggo-go/aquadoggo/internal/store/sqlite"
	"github.com/aquadoggo-go/aquadoggo/internal/types"
	"github.com/aquadoggo-go/aquadoggo/internal/validator"
	"github.com/aquadoggo-go/aquadoggo/internal/wire"
)

func TestManagerOpenSessionCollapsesDuplicateTarget(t *testing.T) {
	t.Parallel()
	m := replication.NewManager(config.Default())

	target := []types.SchemaID{"note_v1"}
	first, isNew := m.OpenSession(replication.NewSessionID(), "peer-a", types.SessionModeOneShot, types.StrategyLogHeight, types.RoleInitiator, target)
	require.True(t, isNew)

	second, isNew := m.OpenSession(replication.NewSessionID(), "peer-a", types.SessionModeOneShot, types.StrategyLogHeight, types.RoleInitiator, target)
	assert.False(t, isNew)
	assert.Equal(t, first.Record().SessionID, second.Record().SessionID)

	m.CloseSession(first.Record().SessionID, false)
	_, isNew = m.OpenSession(replication.NewSessionID(), "peer-a", types.SessionModeOneShot, types.StrategyLogHeight, types.RoleInitiator, target)
	assert.True(t, isNew, "a closed session's target should be reusable")
}

func TestManagerCoolDownFollowsFailureThenResetsOnSuccess(t *testing.T) {
	t.Parallel()
	m := replication.NewManager(config.Default())

	assert.False(t, m.CoolingDown("peer-b"))
	m.RecordFailure("peer-b")
	assert.True(t, m.CoolingDown("peer-b"))

	m.RecordSuccess("peer-b")
	assert.False(t, m.CoolingDown("peer-b"))
}

func TestManagerAllowedRespectsConfigAllowList(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.AllowPeerIDs = []string{"peer-allowed"}
	m := replication.NewManager(cfg)

	assert.True(t, m.Allowed("peer-allowed"))
	assert.False(t, m.Allowed("peer-blocked"))
}

// harness bundles one node's full write+replication path, built directly
// (not through cmd/aquadoggod) so the sync test can drive both sides in
// the same process over a net.Pipe().
type harness struct {
	store    *store.Store
	registry *schema.Registry
	pipeline *publish.Pipeline
	engine   *replication.Engine
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	s, err := sqlite.Open(":memory:", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	bus := eventbus.New()
	reg := schema.New(bus)
	require.NoError(t, reg.Upsert(context.Background(), &types.Schema{
		SchemaID: "note_v1",
		Name:     "note",
		Fields:   []types.SchemaField{{Key: "title", Type: types.FieldTypeString}},
	}))

	v := validator.New(s, reg)
	p := publish.New(s, v, bus)
	engine := replication.NewEngine(cfg, s, p, reg)
	return &harness{store: s, registry: reg, pipeline: p, engine: engine}
}

func (h *harness) publishNote(t *testing.T, seed []byte, seqNum types.SeqNum, backlink *types.Hash, title string) {
	t.Helper()
	op := &types.Operation{Action: types.ActionCreate, SchemaID: "note_v1",
		Fields: map[string]types.FieldValue{"title": types.StringValue(title)}}
	if seqNum > 1 {
		op.Action = types.ActionUpdate
	}
	opBytes, err := wire.EncodeOperation(op)
	require.NoError(t, err)

	pub, _, err := crypto.Sign(seed, []byte("unused"))
	require.NoError(t, err)

	entry := &types.Entry{
		PublicKey:   pub,
		LogID:       0,
		SeqNum:      seqNum,
		PayloadHash: crypto.Hash(opBytes),
		PayloadSize: uint64(len(opBytes)),
		Backlink:    backlink,
	}
	signed, hash, err := wire.AssembleEntry(entry, seed)
	require.NoError(t, err)
	entry.EncodedBytes = signed
	entry.EntryHash = hash

	_, err = h.pipeline.Publish(context.Background(), signed, opBytes)
	require.NoError(t, err)
}

func TestLogHeightSyncConvergesTwoNodes(t *testing.T) {
	t.Parallel()
	nodeA := newHarness(t, config.Default())
	nodeB := newHarness(t, config.Default())

	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 42
	nodeA.publishNote(t, seed, 1, nil, "first note")

	connA, connB := net.Pipe()
	defer func() { _ = connA.Close() }()
	defer func() { _ = connB.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- nodeB.engine.ServeConn(ctx, connB, "node-a") }()
	go func() { errCh <- nodeA.engine.SyncOutbound(ctx, connA, "node-b", types.SessionModeOneShot) }()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-ctx.Done():
			t.Fatal("sync did not complete in time")
		}
	}

	pub, _, err := crypto.Sign(seed, []byte("unused"))
	require.NoError(t, err)
	entry, err := nodeB.store.GetLatestEntry(context.Background(), pub, 0)
	require.NoError(t, err)
	require.NotNil(t, entry, "node B should have received node A's entry")
	assert.Equal(t, types.SeqNum(1), entry.SeqNum)
}
