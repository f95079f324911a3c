// Package types defines the core entity model shared by every component of
// the node: public keys, logs, entries, operations, documents, views,
// schemas, tasks and replication sessions.
package types

import (
	"encoding/hex"
	"fmt"
	"time"
)

// PublicKey is the 32-byte Ed25519 identifier of a log author.
type PublicKey [32]byte

// String renders the public key as lowercase hex.
func (k PublicKey) String() string {
	return hex.EncodeToString(k[:])
}

// ParsePublicKey decodes a hex-encoded public key.
func ParsePublicKey(s string) (PublicKey, error) {
	var k PublicKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("types: invalid public key hex: %w", err)
	}
	if len(b) != len(k) {
		return k, fmt.Errorf("types: public key must be %d bytes, got %d", len(k), len(b))
	}
	copy(k[:], b)
	return k, nil
}

// Hash is a content-addressed, hex-encoded digest produced by the crypto
// collaborator (see internal/crypto). It is used for entry hashes and
// payload hashes alike.
type Hash string

// DocumentID is the operation id of a document's create operation.
type DocumentID string

// OperationID identifies a single operation, derived from the hash of its
// encoded bytes by the crypto collaborator.
type OperationID string

// ViewID identifies a document view: the deterministic, hash-ordered join
// of its tip operation ids.
type ViewID string

// SchemaID has the form "<name>_<view_id>".
type SchemaID string

// LogID is a per-author, monotonically assigned log identifier, starting
// at 0 for the first document an author contributes to.
type LogID uint64

// SeqNum is a 1-indexed, gap-free sequence number within a single log.
type SeqNum uint64

// Action is the kind of mutation an operation performs.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Log binds an author's append-only sequence of entries to exactly one
// document and schema.
type Log struct {
	PublicKey  PublicKey
	LogID      LogID
	DocumentID DocumentID
	SchemaID   SchemaID
}

// Entry is an append-only, signed record in a log.
type Entry struct {
	PublicKey    PublicKey
	LogID        LogID
	SeqNum       SeqNum
	PayloadHash  Hash
	PayloadSize  uint64
	Backlink     *Hash
	Skiplink     *Hash
	Signature    []byte
	EncodedBytes []byte
	EntryHash    Hash
}

// Operation is the CBOR-encoded payload an entry references.
type Operation struct {
	OperationID OperationID
	DocumentID  DocumentID
	Action      Action
	SchemaID    SchemaID
	Previous    []OperationID
	Fields      map[string]FieldValue
	// EncodedBytes are the exact bytes that were signed over (via PayloadHash).
	EncodedBytes []byte
}

// Document is the CRDT reduction of all operations sharing a create
// operation as their document id.
type Document struct {
	DocumentID    DocumentID
	CurrentViewID ViewID
	SchemaID      SchemaID
	IsDeleted     bool
	// Owner is the public key that authored the document's create
	// operation, exposed to the query planner as the "owner" meta field.
	Owner PublicKey
	// Edited is when this document's current view was last materialized,
	// exposed to the query planner as the "edited" meta field.
	Edited time.Time
}

// DocumentView is a snapshot of a document at a specific set of tip
// operation ids.
type DocumentView struct {
	ViewID   ViewID
	SchemaID string
	// Fields maps field name to its resolved value and the operation that
	// contributed it, mirroring the document_view_fields table.
	Fields map[string]ViewField
}

// ViewField is one resolved field of a document view, with provenance.
type ViewField struct {
	Value       FieldValue
	OperationID OperationID
}

// TaskName enumerates materializer task kinds.
type TaskName string

const (
	TaskReduce            TaskName = "reduce"
	TaskDependency        TaskName = "dependency"
	TaskSchema            TaskName = "schema"
	TaskBlob              TaskName = "blob"
	TaskGarbageCollection TaskName = "garbage_collection"
)

// TaskInput identifies what a task operates on. Exactly one of DocumentID
// or ViewID is expected to be set, depending on the task.
type TaskInput struct {
	DocumentID *DocumentID
	ViewID     *ViewID
}

// Key returns a stable, comparable representation suitable for map-based
// deduplication of (name, input) pairs.
func (t TaskInput) Key() string {
	doc := ""
	if t.DocumentID != nil {
		doc = string(*t.DocumentID)
	}
	view := ""
	if t.ViewID != nil {
		view = string(*t.ViewID)
	}
	return doc + "\x00" + view
}

// Task is a unit of deferred materialization work.
type Task struct {
	Name    TaskName
	Input   TaskInput
	Retries int
}

// Key returns the dedup key for the task's (name, input) tuple.
func (t Task) Key() string {
	return string(t.Name) + "\x00" + t.Input.Key()
}

// SchemaFieldType enumerates the field types operations and schemas use.
type SchemaFieldType string

const (
	FieldTypeBool           SchemaFieldType = "bool"
	FieldTypeInt            SchemaFieldType = "int"
	FieldTypeFloat          SchemaFieldType = "float"
	FieldTypeString         SchemaFieldType = "string"
	FieldTypeBytes          SchemaFieldType = "bytes"
	FieldTypeRelation       SchemaFieldType = "relation"
	FieldTypePinnedRelation SchemaFieldType = "pinned_relation"
	FieldTypeList           SchemaFieldType = "list"
)

// SchemaField is one named, typed column of a schema.
type SchemaField struct {
	Key  string
	Type SchemaFieldType
}

// Schema is a named, versioned description of a document's fields.
type Schema struct {
	SchemaID    SchemaID
	Name        string
	Description string
	Fields      []SchemaField
}

// SessionMode distinguishes a one-shot sync from a continuously streaming one.
type SessionMode string

const (
	SessionModeLive    SessionMode = "live"
	SessionModeOneShot SessionMode = "one-shot"
)

// SessionStrategy selects a replication algorithm.
type SessionStrategy string

const (
	StrategyLogHeight       SessionStrategy = "log-height"
	StrategySetReconciliation SessionStrategy = "set-reconciliation"
)

// SessionRole distinguishes who opened the session.
type SessionRole string

const (
	RoleInitiator SessionRole = "initiator"
	RoleAcceptor  SessionRole = "acceptor"
)

// SessionState is a node in the replication session state machine.
type SessionState string

const (
	SessionPending     SessionState = "pending"
	SessionEstablished SessionState = "established"
	SessionDone        SessionState = "done"
	SessionFailed      SessionState = "failed"
)

// ReplicationSession tracks one peer-to-peer sync exchange.
type ReplicationSession struct {
	SessionID uint64
	PeerID    string
	Mode      SessionMode
	Strategy  SessionStrategy
	Role      SessionRole
	TargetSet []SchemaID
	State     SessionState
}
