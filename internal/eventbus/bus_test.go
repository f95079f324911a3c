package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

type testHandler struct {
	id       string
	handles  []EventType
	priority int
	calls    int
	fn       func(ctx context.Context, event *Event, result *Result) error
}

func (h *testHandler) ID() string           { return h.id }
func (h *testHandler) Handles() []EventType { return h.handles }
func (h *testHandler) Priority() int        { return h.priority }

func (h *testHandler) Handle(ctx context.Context, event *Event, result *Result) error {
	h.calls++
	if h.fn != nil {
		return h.fn(ctx, event, result)
	}
	return nil
}

func TestDispatchCallsMatchingHandlersInPriorityOrder(t *testing.T) {
	var order []string
	first := &testHandler{id: "first", handles: []EventType{EventNewOperation}, priority: 1,
		fn: func(ctx context.Context, e *Event, r *Result) error { order = append(order, "first"); return nil }}
	second := &testHandler{id: "second", handles: []EventType{EventNewOperation}, priority: 0,
		fn: func(ctx context.Context, e *Event, r *Result) error { order = append(order, "second"); return nil }}
	unrelated := &testHandler{id: "unrelated", handles: []EventType{EventSchemaAdded}, priority: 0}

	bus := New()
	bus.Register(first)
	bus.Register(second)
	bus.Register(unrelated)

	_, err := bus.Dispatch(context.Background(), &Event{Type: EventNewOperation, DocumentID: types.DocumentID("doc-1")})
	require.NoError(t, err)

	assert.Equal(t, []string{"second", "first"}, order)
	assert.Equal(t, 0, unrelated.calls)
}

func TestDispatchCollectsHandlerErrorsAsWarnings(t *testing.T) {
	bus := New()
	bus.Register(&testHandler{id: "failing", handles: []EventType{EventSchemaAdded}, priority: 0,
		fn: func(ctx context.Context, e *Event, r *Result) error { return assert.AnError }})

	result, err := bus.Dispatch(context.Background(), &Event{Type: EventSchemaAdded})
	require.NoError(t, err)
	assert.Len(t, result.Warnings, 1)
}

func TestUnregisterRemovesHandler(t *testing.T) {
	bus := New()
	h := &testHandler{id: "h1", handles: []EventType{EventNewOperation}}
	bus.Register(h)
	assert.True(t, bus.Unregister("h1"))
	assert.False(t, bus.Unregister("h1"))
}

func TestDispatchRejectsNilEvent(t *testing.T) {
	bus := New()
	_, err := bus.Dispatch(context.Background(), nil)
	assert.Error(t, err)
}
