package types

import "errors"

// ValidationKind enumerates the publish-pipeline failure taxonomy.
// Only ErrDuplicate is an idempotent success; every other kind rejects
// the publish without side effects.
type ValidationKind string

const (
	ErrKindInvalidEncoding   ValidationKind = "InvalidEncoding"
	ErrKindInvalidSignature  ValidationKind = "InvalidSignature"
	ErrKindLogIDMismatch     ValidationKind = "LogIdMismatch"
	ErrKindSeqNumGap         ValidationKind = "SeqNumGap"
	ErrKindBacklinkMissing   ValidationKind = "BacklinkMissing"
	ErrKindSkiplinkMismatch  ValidationKind = "SkiplinkMismatch"
	ErrKindSchemaNotSupported ValidationKind = "SchemaNotSupported"
	ErrKindPayloadMismatch   ValidationKind = "PayloadMismatch"
	ErrKindPreviousNotFound  ValidationKind = "PreviousNotFound"
	ErrKindDuplicate         ValidationKind = "Duplicate"
)

// ValidationError is a classified, non-retryable rejection of a publish
// attempt. Use errors.As to recover the Kind at a call site.
type ValidationError struct {
	Kind ValidationKind
	Msg  string
}

func (e *ValidationError) Error() string {
	return string(e.Kind) + ": " + e.Msg
}

// NewValidationError constructs a ValidationError of the given kind.
func NewValidationError(kind ValidationKind, msg string) *ValidationError {
	return &ValidationError{Kind: kind, Msg: msg}
}

// IsDuplicate reports whether err is the idempotent-success Duplicate case.
func IsDuplicate(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind == ErrKindDuplicate
	}
	return false
}

// TransientError wraps a retryable failure (store contention, peer
// disconnect). The task queue and replication engine retry these with
// bounded attempts instead of surfacing them as fatal.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as a TransientError.
func NewTransientError(err error) *TransientError {
	return &TransientError{Err: err}
}

// FatalError marks a supervisor-surfaced condition that should stop the
// process: a corrupted store, a panicked worker, disk exhaustion.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "fatal: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// NewFatalError wraps err as a FatalError.
func NewFatalError(err error) *FatalError {
	return &FatalError{Err: err}
}
