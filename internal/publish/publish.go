// Package publish implements the node's single transactional ingest path:
// validate → insert_entry → insert_operation → ensure_log → enqueue
// reduce, as one atomic unit, followed by a best-effort new_operation
// broadcast. Wraps a single store.WithTx call with pre-write validation.
package publish

import (
	"context"
	"fmt"

	"github.com/aquadoggo-go/aquadoggo/internal/eventbus"
	"github.com/aquadoggo-go/aquadoggo/internal/logging"
	"github.com/aquadoggo-go/aquadoggo/internal/store"
	"github.com/aquadoggo-go/aquadoggo/internal/telemetry"
	"github.com/aquadoggo-go/aquadoggo/internal/types"
	"github.com/aquadoggo-go/aquadoggo/internal/validator"
	"github.com/aquadoggo-go/aquadoggo/internal/wire"
)

// Pipeline is the publish entry point consumed by the external client API
// and by the replication engine when it ingests entries
// received from peers.
type Pipeline struct {
	store     *store.Store
	validator *validator.Validator
	bus       *eventbus.Bus
	log       *logging.Logger
}

// New builds a Pipeline writing to s, validating with v, and broadcasting
// commits on bus.
func New(s *store.Store, v *validator.Validator, bus *eventbus.Bus) *Pipeline {
	return &Pipeline{store: s, validator: v, bus: bus, log: logging.New("publish")}
}

// Result is what a successful (or idempotent-duplicate) publish reports
// back to the caller, mirroring next_args's shape.
type Result struct {
	LogID      types.LogID
	SeqNum     types.SeqNum
	Backlink   *types.Hash
	Skiplink   *types.Hash
	Duplicate  bool
	DocumentID types.DocumentID
}

// Publish validates and commits a signed entry + operation pair atomically,
// enqueueing a reduce task on success. A types.ValidationError of kind
// Duplicate is not returned as an error here — it is folded into
// Result.Duplicate ("Only Duplicate is idempotent-success").
func (p *Pipeline) Publish(ctx context.Context, entryBytes, operationBytes []byte) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "publish.Publish")
	defer span.End()

	decoded, err := p.validator.ValidatePublish(ctx, entryBytes, operationBytes)
	if err != nil {
		if types.IsDuplicate(err) {
			return p.duplicateResult(ctx, entryBytes)
		}
		return nil, err
	}

	err = p.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.InsertEntry(ctx, decoded.Entry); err != nil {
			return fmt.Errorf("publish: insert entry: %w", err)
		}
		if err := tx.InsertOperation(ctx, decoded.Operation); err != nil {
			return fmt.Errorf("publish: insert operation: %w", err)
		}
		if _, err := tx.EnsureLog(ctx, decoded.Entry.PublicKey, decoded.DocumentID, decoded.Operation.SchemaID); err != nil {
			return fmt.Errorf("publish: ensure log: %w", err)
		}
		task := types.Task{Name: types.TaskReduce, Input: types.TaskInput{DocumentID: &decoded.DocumentID}}
		if err := tx.InsertTask(ctx, task); err != nil {
			return fmt.Errorf("publish: enqueue reduce: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := p.bus.Dispatch(ctx, &eventbus.Event{
		Type:        eventbus.EventNewOperation,
		DocumentID:  decoded.DocumentID,
		OperationID: decoded.Operation.OperationID,
		SchemaID:    decoded.Operation.SchemaID,
	}); err != nil {
		p.log.Printf("new_operation dispatch failed for %s: %v", decoded.DocumentID, err)
	}

	telemetry.RecordOperationPublished(ctx, string(decoded.Operation.SchemaID))

	return &Result{
		LogID:      decoded.Entry.LogID,
		SeqNum:     decoded.Entry.SeqNum,
		Backlink:   decoded.Entry.Backlink,
		Skiplink:   decoded.Entry.Skiplink,
		DocumentID: decoded.DocumentID,
	}, nil
}

func (p *Pipeline) duplicateResult(ctx context.Context, entryBytes []byte) (*Result, error) {
	logID, seqNum, backlink, skiplink, docID, err := p.nextArgsForDuplicate(ctx, entryBytes)
	if err != nil {
		return nil, err
	}
	return &Result{
		LogID:      logID,
		SeqNum:     seqNum,
		Backlink:   backlink,
		Skiplink:   skiplink,
		Duplicate:  true,
		DocumentID: docID,
	}, nil
}

// nextArgsForDuplicate re-derives next_args for an entry that is already
// committed, so a retried publish of the same bytes gets the same answer a
// fresh next_args call would.
func (p *Pipeline) nextArgsForDuplicate(ctx context.Context, entryBytes []byte) (types.LogID, types.SeqNum, *types.Hash, *types.Hash, types.DocumentID, error) {
	entry, err := wire.DecodeEntry(entryBytes)
	if err != nil {
		return 0, 0, nil, nil, "", fmt.Errorf("publish: decode duplicate entry: %w", err)
	}
	existingLog, err := p.store.GetLog(ctx, entry.PublicKey, entry.LogID)
	if err != nil {
		return 0, 0, nil, nil, "", err
	}
	var docID types.DocumentID
	if existingLog != nil {
		docID = existingLog.DocumentID
	}
	logID, seqNum, backlink, skiplink, err := p.validator.NextArgs(ctx, entry.PublicKey, &docID)
	if err != nil {
		return 0, 0, nil, nil, "", err
	}
	return logID, seqNum, backlink, skiplink, docID, nil
}
