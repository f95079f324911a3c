// Package eventbus is the node's in-process notification fan-out, carrying
// two internal signals: the publish pipeline's new_operation commit and
// the schema provider's SchemaAdded/SchemaUpdated notifications. When a
// NATS URL is configured, events are additionally published to JetStream
// so a multi-process deployment still converges.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/aquadoggo-go/aquadoggo/internal/logging"
)

var log = logging.New("eventbus")

// Bus dispatches events to registered handlers and optionally mirrors them
// to NATS JetStream for cross-process consumption.
type Bus struct {
	handlers []Handler
	js       nats.JetStreamContext
	mu       sync.RWMutex
}

// New creates an empty event bus.
func New() *Bus {
	return &Bus{}
}

// SetJetStream attaches a JetStream context. When set, Dispatch publishes
// each event to JetStream after running local handlers.
func (b *Bus) SetJetStream(js nats.JetStreamContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.js = js
}

// JetStreamEnabled reports whether JetStream publishing is configured.
func (b *Bus) JetStreamEnabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.js != nil
}

// Register adds a handler to the bus. Handlers are sorted by priority on
// each Dispatch call, so registration order does not matter.
func (b *Bus) Register(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Unregister removes a handler by ID, reporting whether one was found.
func (b *Bus) Unregister(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.handlers {
		if h.ID() == id {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Dispatch sends event to every registered handler that handles its type,
// in priority order (lowest first). Handler errors are logged but never
// stop the chain — the bus is resilient by design. If JetStream is
// configured, the event is published afterward on a best-effort basis.
func (b *Bus) Dispatch(ctx context.Context, event *Event) (*Result, error) {
	if event == nil {
		return nil, fmt.Errorf("eventbus: nil event")
	}

	b.mu.RLock()
	matching := b.matchingHandlers(event.Type)
	js := b.js
	b.mu.RUnlock()

	result := &Result{}
	for _, h := range matching {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("eventbus: context canceled: %w", err)
		}
		if err := h.Handle(ctx, event, result); err != nil {
			log.Printf("handler %q error for %s: %v", h.ID(), event.Type, err)
			result.Warnings = append(result.Warnings, err.Error())
		}
	}

	if js != nil {
		b.publishToJetStream(js, event)
	}
	return result, nil
}

func (b *Bus) publishToJetStream(js nats.JetStreamContext, event *Event) {
	subject := subjectForEvent(event.Type)
	data, err := json.Marshal(jetStreamEvent{
		Type:        string(event.Type),
		DocumentID:  string(event.DocumentID),
		OperationID: string(event.OperationID),
		SchemaID:    string(event.SchemaID),
	})
	if err != nil {
		log.Printf("failed to marshal event for JetStream: %v", err)
		return
	}
	if _, err := js.Publish(subject, data); err != nil {
		log.Printf("JetStream publish to %s failed: %v", subject, err)
	}
}

// jetStreamEvent is the wire shape of an Event published to JetStream —
// a flattened view that drops the (process-local) *types.Schema pointer.
type jetStreamEvent struct {
	Type        string `json:"type"`
	DocumentID  string `json:"document_id,omitempty"`
	OperationID string `json:"operation_id,omitempty"`
	SchemaID    string `json:"schema_id,omitempty"`
}

func subjectForEvent(t EventType) string {
	switch t {
	case EventNewOperation:
		return "aquadoggo.new_operation"
	case EventSchemaAdded:
		return "aquadoggo.schema.added"
	case EventSchemaUpdated:
		return "aquadoggo.schema.updated"
	default:
		return "aquadoggo.unknown"
	}
}

// Handlers returns a snapshot of registered handlers for introspection.
func (b *Bus) Handlers() []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, len(b.handlers))
	copy(out, b.handlers)
	return out
}

// matchingHandlers returns handlers that handle eventType, sorted by
// priority (lowest first). Caller must hold at least a read lock.
func (b *Bus) matchingHandlers(eventType EventType) []Handler {
	var matched []Handler
	for _, h := range b.handlers {
		for _, t := range h.Handles() {
			if t == eventType {
				matched = append(matched, h)
				break
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Priority() < matched[j].Priority()
	})
	return matched
}
