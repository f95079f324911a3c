// Package taskqueue is the node's in-memory, deduplicating mirror of the
// persisted tasks table. It is the multi-producer,
// multi-consumer handoff point between the publish pipeline/materializer
// (producers) and the worker pool (consumer), using a channel-per-task-name
// fan-out so a burst of one task kind never starves another.
package taskqueue

import (
	"context"
	"sync"

	"github.com/aquadoggo-go/aquadoggo/internal/store"
	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// Queue holds one 4096-slot buffered channel per task name plus an in-memory set
// used to drop duplicate (name, input) enqueues before they ever reach the
// channel dedupe rule.
type Queue struct {
	store *store.Store

	mu      sync.Mutex
	pending map[types.TaskName]map[string]struct{}
	chans   map[types.TaskName]chan types.Task
}

// New builds an empty Queue. Call Restore once at startup to reload any
// tasks left over from a previous run.
func New(s *store.Store) *Queue {
	return &Queue{
		store:   s,
		pending: make(map[types.TaskName]map[string]struct{}),
		chans:   make(map[types.TaskName]chan types.Task),
	}
}

// Restore reloads every persisted task row into the in-memory queue, the
// "pending tasks survive restart" guarantee.
func (q *Queue) Restore(ctx context.Context) error {
	for _, name := range []types.TaskName{
		types.TaskReduce, types.TaskDependency, types.TaskSchema, types.TaskBlob, types.TaskGarbageCollection,
	} {
		tasks, err := q.store.GetTasks(ctx, name)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			q.enqueueLocked(t)
		}
	}
	return nil
}

// Enqueue adds task to its name's queue unless an identical (name, input)
// task is already pending, and persists the row so it survives a restart.
// Each task name's channel buffers 4096 tasks; once it is full, Enqueue
// blocks (holding the queue's lock) until a worker receives from it.
func (q *Queue) Enqueue(ctx context.Context, task types.Task) error {
	q.mu.Lock()
	dup := q.isDuplicateLocked(task)
	if !dup {
		q.enqueueLocked(task)
	}
	q.mu.Unlock()

	if dup {
		return nil
	}
	return q.store.InsertTask(ctx, task)
}

func (q *Queue) isDuplicateLocked(task types.Task) bool {
	set, ok := q.pending[task.Name]
	if !ok {
		return false
	}
	_, exists := set[task.Input.Key()]
	return exists
}

func (q *Queue) enqueueLocked(task types.Task) {
	set, ok := q.pending[task.Name]
	if !ok {
		set = make(map[string]struct{})
		q.pending[task.Name] = set
	}
	set[task.Input.Key()] = struct{}{}

	ch, ok := q.chans[task.Name]
	if !ok {
		ch = make(chan types.Task, 4096)
		q.chans[task.Name] = ch
	}
	ch <- task
}

// Channel returns the receive-only channel a worker for name consumes
// from, creating it if this is the first reference.
func (q *Queue) Channel(name types.TaskName) <-chan types.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.chans[name]
	if !ok {
		ch = make(chan types.Task, 4096)
		q.chans[name] = ch
	}
	return ch
}

// Done marks a task no longer pending, allowing it to be re-enqueued
// (e.g. the dependency task re-triggering itself). Call after a worker
// removes the persisted row on success or permanent failure.
func (q *Queue) Done(task types.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if set, ok := q.pending[task.Name]; ok {
		delete(set, task.Input.Key())
	}
}
