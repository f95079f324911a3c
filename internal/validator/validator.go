// Package validator implements the stateless publish-precondition checks
// an entry/operation pair must pass before admission, as small, pure,
// table-tested functions. The validator never writes to the store;
// internal/publish owns the transactional write path and only calls here
// first.
package validator

import (
	"context"
	"fmt"

	"github.com/aquadoggo-go/aquadoggo/internal/crypto"
	"github.com/aquadoggo-go/aquadoggo/internal/store"
	"github.com/aquadoggo-go/aquadoggo/internal/types"
	"github.com/aquadoggo-go/aquadoggo/internal/wire"
)

// SchemaLookup resolves a schema by id so the validator can check field
// conformance. internal/schema's registry satisfies this.
type SchemaLookup interface {
	Schema(schemaID types.SchemaID) (*types.Schema, bool)
}

// Validator checks a candidate (entry, operation) pair against every
// admission rule before the publish pipeline is allowed to write it.
type Validator struct {
	store   *store.Store
	schemas SchemaLookup
}

// New builds a Validator reading committed state from s and consulting
// schemas for field conformance.
func New(s *store.Store, schemas SchemaLookup) *Validator {
	return &Validator{store: s, schemas: schemas}
}

// NextArgs computes the (log_id, seq_num, backlink, skiplink) a client
// should use for its next entry on behalf of publicKey, optionally
// continuing an existing document named by documentID.
func (v *Validator) NextArgs(ctx context.Context, publicKey types.PublicKey, documentID *types.DocumentID) (logID types.LogID, seqNum types.SeqNum, backlink, skiplink *types.Hash, err error) {
	if documentID == nil {
		nextID, err := v.store.NextLogID(ctx, publicKey)
		if err != nil {
			return 0, 0, nil, nil, err
		}
		return nextID, 1, nil, nil, nil
	}

	existing, err := v.store.LogIDForDocument(ctx, publicKey, *documentID)
	if err != nil {
		return 0, 0, nil, nil, err
	}
	if existing == nil {
		nextID, err := v.store.NextLogID(ctx, publicKey)
		if err != nil {
			return 0, 0, nil, nil, err
		}
		return nextID, 1, nil, nil, nil
	}

	latest, err := v.store.GetLatestEntry(ctx, publicKey, *existing)
	if err != nil {
		return 0, 0, nil, nil, err
	}
	if latest == nil {
		return *existing, 1, nil, nil, nil
	}

	nextSeq := latest.SeqNum + 1
	bl := latest.EntryHash
	var sl *types.Hash
	if lipmaaSeq := crypto.Lipmaa(nextSeq); lipmaaSeq != 0 {
		target, err := v.entryAtSeq(ctx, publicKey, *existing, lipmaaSeq)
		if err != nil {
			return 0, 0, nil, nil, err
		}
		if target != nil {
			h := target.EntryHash
			sl = &h
		}
	}
	return *existing, nextSeq, &bl, sl, nil
}

func (v *Validator) entryAtSeq(ctx context.Context, publicKey types.PublicKey, logID types.LogID, seq types.SeqNum) (*types.Entry, error) {
	if seq == 0 {
		return nil, nil
	}
	entries, err := v.store.GetEntriesNewerThan(ctx, publicKey, logID, seq-1, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0], nil
}

// Decoded is a validated, decoded publish candidate ready for the publish
// pipeline to write atomically.
type Decoded struct {
	Entry      *types.Entry
	Operation  *types.Operation
	DocumentID types.DocumentID
}

// ValidatePublish runs every admission rule against a candidate
// entry+operation pair. A *types.ValidationError of kind ErrKindDuplicate
// means the pair is already committed; callers should treat that as a
// no-op success (types.IsDuplicate). Any other error rejects the publish.
func (v *Validator) ValidatePublish(ctx context.Context, entryBytes, operationBytes []byte) (*Decoded, error) {
	entry, err := wire.DecodeEntry(entryBytes)
	if err != nil {
		return nil, types.NewValidationError(types.ErrKindInvalidEncoding, err.Error())
	}
	operation, err := wire.DecodeOperation(operationBytes)
	if err != nil {
		return nil, types.NewValidationError(types.ErrKindInvalidEncoding, err.Error())
	}

	if existing, err := v.store.GetEntry(ctx, entry.EntryHash); err != nil {
		return nil, fmt.Errorf("validator: duplicate check: %w", err)
	} else if existing != nil {
		return nil, types.NewValidationError(types.ErrKindDuplicate, "entry already committed")
	}

	if entry.PayloadHash != crypto.Hash(operationBytes) {
		return nil, types.NewValidationError(types.ErrKindPayloadMismatch, "payload_hash does not match hash(operation_bytes)")
	}

	ok, err := wire.VerifyEntrySignature(entry)
	if err != nil {
		return nil, types.NewValidationError(types.ErrKindInvalidEncoding, err.Error())
	}
	if !ok {
		return nil, types.NewValidationError(types.ErrKindInvalidSignature, "signature does not verify under claimed public key")
	}

	operationID := types.OperationID(crypto.Hash(operationBytes))
	operation.OperationID = operationID

	var documentID types.DocumentID
	switch operation.Action {
	case types.ActionCreate:
		if len(operation.Previous) != 0 {
			return nil, types.NewValidationError(types.ErrKindInvalidEncoding, "create operation must not reference previous operations")
		}
		documentID = types.DocumentID(operationID)
		operation.DocumentID = documentID

		if entry.Backlink != nil || entry.Skiplink != nil {
			return nil, types.NewValidationError(types.ErrKindBacklinkMissing, "create entry must not carry a backlink or skiplink")
		}
		if entry.SeqNum != 1 {
			return nil, types.NewValidationError(types.ErrKindSeqNumGap, "create entry must have seq_num 1")
		}
		existingLog, err := v.store.LogIDForDocument(ctx, entry.PublicKey, documentID)
		if err != nil {
			return nil, fmt.Errorf("validator: log lookup: %w", err)
		}
		if existingLog != nil {
			return nil, types.NewValidationError(types.ErrKindLogIDMismatch, "public key already has a log for this document")
		}
		expectedLogID, err := v.store.NextLogID(ctx, entry.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("validator: next log id: %w", err)
		}
		if entry.LogID != expectedLogID {
			return nil, types.NewValidationError(types.ErrKindLogIDMismatch, "entry declares a log_id other than the author's next free log")
		}

	case types.ActionUpdate, types.ActionDelete:
		if len(operation.Previous) == 0 {
			return nil, types.NewValidationError(types.ErrKindPreviousNotFound, "update/delete operation must reference at least one previous operation")
		}
		anchor, err := v.store.GetOperation(ctx, operation.Previous[0])
		if err != nil {
			return nil, fmt.Errorf("validator: resolve previous: %w", err)
		}
		if anchor == nil {
			return nil, types.NewValidationError(types.ErrKindPreviousNotFound, "previous operation not found")
		}
		documentID = anchor.DocumentID
		operation.DocumentID = documentID
		for _, prevID := range operation.Previous[1:] {
			prev, err := v.store.GetOperation(ctx, prevID)
			if err != nil {
				return nil, fmt.Errorf("validator: resolve previous: %w", err)
			}
			if prev == nil || prev.DocumentID != documentID {
				return nil, types.NewValidationError(types.ErrKindPreviousNotFound, "previous operation not found or belongs to a different document")
			}
		}

		existingLog, err := v.store.LogIDForDocument(ctx, entry.PublicKey, documentID)
		if err != nil {
			return nil, fmt.Errorf("validator: log lookup: %w", err)
		}
		if existingLog == nil || entry.LogID != *existingLog {
			return nil, types.NewValidationError(types.ErrKindLogIDMismatch, "entry declares a log_id not bound to this document")
		}

		latest, err := v.store.GetLatestEntry(ctx, entry.PublicKey, entry.LogID)
		if err != nil {
			return nil, fmt.Errorf("validator: latest entry: %w", err)
		}
		if latest == nil {
			return nil, types.NewValidationError(types.ErrKindBacklinkMissing, "no prior entry exists to back-link to")
		}
		if entry.SeqNum != latest.SeqNum+1 {
			return nil, types.NewValidationError(types.ErrKindSeqNumGap, "seq_num is not the next in sequence")
		}
		if entry.Backlink == nil || *entry.Backlink != latest.EntryHash {
			return nil, types.NewValidationError(types.ErrKindBacklinkMissing, "backlink must reference the latest committed entry")
		}

		lipmaaSeq := crypto.Lipmaa(entry.SeqNum)
		if lipmaaSeq == 0 {
			if entry.Skiplink != nil {
				return nil, types.NewValidationError(types.ErrKindSkiplinkMismatch, "skiplink present but none is required at this seq_num")
			}
		} else {
			target, err := v.entryAtSeq(ctx, entry.PublicKey, entry.LogID, lipmaaSeq)
			if err != nil {
				return nil, fmt.Errorf("validator: skiplink lookup: %w", err)
			}
			if target == nil || entry.Skiplink == nil || *entry.Skiplink != target.EntryHash {
				return nil, types.NewValidationError(types.ErrKindSkiplinkMismatch, "skiplink does not match the lipmaa-link target")
			}
		}

	default:
		return nil, types.NewValidationError(types.ErrKindInvalidEncoding, fmt.Sprintf("unknown action %q", operation.Action))
	}

	if schema, ok := v.schemas.Schema(operation.SchemaID); ok {
		if err := conformsToSchema(operation, schema); err != nil {
			return nil, types.NewValidationError(types.ErrKindSchemaNotSupported, err.Error())
		}
	}

	return &Decoded{Entry: entry, Operation: operation, DocumentID: documentID}, nil
}

// conformsToSchema checks every field the operation sets against the
// schema's declared type, when the node has the schema materialized.
// Unknown field names are rejected; missing optional fields are allowed
// since create/update/delete may each touch a subset of a schema's fields.
func conformsToSchema(op *types.Operation, schema *types.Schema) error {
	declared := make(map[string]types.SchemaFieldType, len(schema.Fields))
	for _, f := range schema.Fields {
		declared[f.Key] = f.Type
	}
	for name, value := range op.Fields {
		wantType, ok := declared[name]
		if !ok {
			return fmt.Errorf("field %q is not declared by schema %s", name, schema.SchemaID)
		}
		if value.Type != wantType {
			return fmt.Errorf("field %q has type %s, schema %s expects %s", name, value.Type, schema.SchemaID, wantType)
		}
	}
	return nil
}
