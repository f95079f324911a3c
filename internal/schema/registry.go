// Package schema is the node's process-wide schema registry: a
// reducer-populated, in-memory index of every schema_definition_v1 document
// materialized so far, satisfying internal/validator's SchemaLookup
// interface and fanning new/updated schemas out over internal/eventbus.
// Like internal/eventbus.Bus itself, it's an in-memory registry guarded by
// a single sync.RWMutex.
package schema

import (
	"context"
	"sync"

	"github.com/aquadoggo-go/aquadoggo/internal/eventbus"
	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// Registry holds every schema the node has materialized, keyed by its
// full schema_id ("<name>_<view_id>").
type Registry struct {
	bus *eventbus.Bus

	mu      sync.RWMutex
	schemas map[types.SchemaID]*types.Schema
	// latestByName tracks the most recently upserted schema_id per schema
	// name, so a later version's SchemaAdded/SchemaUpdated choice can tell
	// whether this is the name's first schema or a replacement.
	latestByName map[string]types.SchemaID
}

// New builds an empty Registry broadcasting additions/updates on bus.
func New(bus *eventbus.Bus) *Registry {
	return &Registry{
		bus:          bus,
		schemas:      map[types.SchemaID]*types.Schema{},
		latestByName: map[string]types.SchemaID{},
	}
}

// Schema satisfies internal/validator.SchemaLookup.
func (r *Registry) Schema(id types.SchemaID) (*types.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[id]
	return s, ok
}

// Upsert registers s, doing nothing if this exact schema_id is already
// known, and otherwise broadcasts SchemaAdded for a name seen
// for the first time or SchemaUpdated for a new version of a known name.
func (r *Registry) Upsert(ctx context.Context, s *types.Schema) error {
	r.mu.Lock()
	if _, exists := r.schemas[s.SchemaID]; exists {
		r.mu.Unlock()
		return nil
	}
	_, hadPriorVersion := r.latestByName[s.Name]
	r.schemas[s.SchemaID] = s
	r.latestByName[s.Name] = s.SchemaID
	r.mu.Unlock()

	eventType := eventbus.EventSchemaAdded
	if hadPriorVersion {
		eventType = eventbus.EventSchemaUpdated
	}

	_, err := r.bus.Dispatch(ctx, &eventbus.Event{Type: eventType, SchemaID: s.SchemaID, Schema: s})
	return err
}

// All returns every known schema, the client API's schema-discovery source.
func (r *Registry) All() []*types.Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.Schema, 0, len(r.schemas))
	for _, s := range r.schemas {
		out = append(out, s)
	}
	return out
}
