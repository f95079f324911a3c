// Package materializer implements the node's five task handlers: reduce,
// dependency, schema, blob and garbage_collection. Each handler is small
// and single-purpose, one function per task name, store access through the
// shared Store type, matching the worker pool's Handler signature.
package materializer

import (
	"context"

	"github.com/aquadoggo-go/aquadoggo/internal/eventbus"
	"github.com/aquadoggo-go/aquadoggo/internal/logging"
	"github.com/aquadoggo-go/aquadoggo/internal/schema"
	"github.com/aquadoggo-go/aquadoggo/internal/store"
	"github.com/aquadoggo-go/aquadoggo/internal/taskqueue"
	"github.com/aquadoggo-go/aquadoggo/internal/types"
	"github.com/aquadoggo-go/aquadoggo/internal/worker"
)

// Well-known schema ids the materializer gives special treatment, mirroring
// the system schemas every p2p document-store network bootstraps with.
const (
	SchemaDefinitionV1      = "schema_definition_v1"
	SchemaFieldDefinitionV1 = "schema_field_definition_v1"
	BlobV1                  = "blob_v1"
	BlobPieceV1             = "blob_piece_v1"
)

// Materializer owns the store and queue every task handler shares.
type Materializer struct {
	store    *store.Store
	queue    *taskqueue.Queue
	registry *schema.Registry
	bus      *eventbus.Bus
	log      *logging.Logger
}

// New builds a Materializer wired to s, q, reg and bus.
func New(s *store.Store, q *taskqueue.Queue, reg *schema.Registry, bus *eventbus.Bus) *Materializer {
	return &Materializer{store: s, queue: q, registry: reg, bus: bus, log: logging.New("materializer")}
}

// Register binds the five task handlers onto pool.
func (m *Materializer) Register(pool *worker.Pool) {
	pool.Register(types.TaskReduce, m.Reduce)
	pool.Register(types.TaskDependency, m.Dependency)
	pool.Register(types.TaskSchema, m.Schema)
	pool.Register(types.TaskBlob, m.Blob)
	pool.Register(types.TaskGarbageCollection, m.GarbageCollection)
}

func (m *Materializer) enqueue(ctx context.Context, name types.TaskName, documentID *types.DocumentID, viewID *types.ViewID) error {
	return m.queue.Enqueue(ctx, types.Task{Name: name, Input: types.TaskInput{DocumentID: documentID, ViewID: viewID}})
}

func docPtr(id types.DocumentID) *types.DocumentID { return &id }
func viewPtr(id types.ViewID) *types.ViewID        { return &id }
