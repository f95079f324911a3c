package eventbus

import "github.com/aquadoggo-go/aquadoggo/internal/types"

// EventType enumerates the node's internal change notifications: the
// publish pipeline's commit signal and the schema
// provider's registry changes.
type EventType string

const (
	EventNewOperation  EventType = "NewOperation"
	EventSchemaAdded   EventType = "SchemaAdded"
	EventSchemaUpdated EventType = "SchemaUpdated"
)

// Event is a single notification flowing through the bus. Only the fields
// relevant to Type are populated.
type Event struct {
	Type EventType

	// Populated for EventNewOperation.
	DocumentID  types.DocumentID
	OperationID types.OperationID
	SchemaID    types.SchemaID

	// Populated for EventSchemaAdded/EventSchemaUpdated.
	Schema *types.Schema
}

// Result is returned from Dispatch for callers that want to know whether
// any handler reported a problem without aborting the broadcast.
type Result struct {
	Warnings []string
}
