// Package worker runs the node's materializer task handlers against the
// in-memory taskqueue, using a backoff.NewExponentialBackOff retry idiom
// and golang.org/x/sync/errgroup for cooperative shutdown. Retry policy:
// exponential backoff, base 200ms, max 5s, at most 3 retries before
// dead-lettering.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/aquadoggo-go/aquadoggo/internal/logging"
	"github.com/aquadoggo-go/aquadoggo/internal/store"
	"github.com/aquadoggo-go/aquadoggo/internal/taskqueue"
	"github.com/aquadoggo-go/aquadoggo/internal/telemetry"
	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

const maxTaskRetries = 3

// Handler performs one task name's unit of work. Returning a
// *types.TransientError requeues the task with backoff; any other error is
// treated as fatal and surfaces on Pool.Fatal().
type Handler func(ctx context.Context, task types.Task) error

// Pool runs one goroutine group per registered task name, each bounded to
// poolSize-1 concurrent handlers.
type Pool struct {
	queue    *taskqueue.Queue
	store    *store.Store
	log      *logging.Logger
	poolSize int
	handlers map[types.TaskName]Handler
	deadLetters atomic.Int64

	fatal chan error
}

// New builds a Pool of the given total concurrency, consuming from queue
// and persisting retry/removal bookkeeping through s.
func New(queue *taskqueue.Queue, s *store.Store, poolSize int) *Pool {
	if poolSize < 2 {
		poolSize = 2
	}
	return &Pool{
		queue:    queue,
		store:    s,
		log:      logging.New("worker"),
		poolSize: poolSize,
		handlers: make(map[types.TaskName]Handler),
		fatal:    make(chan error, 1),
	}
}

// Register binds a handler to a task name. Call before Run.
func (p *Pool) Register(name types.TaskName, h Handler) {
	p.handlers[name] = h
}

// Fatal reports the channel a supervisor should select on: a handler panic
// or an unrecoverable store error stops the pool and surfaces here, so the
// caller can shut the service down.
func (p *Pool) Fatal() <-chan error { return p.fatal }

// DeadLetters reports how many tasks have exhausted their retries and been
// dropped, the telemetry package's task_dead_letter counter source.
func (p *Pool) DeadLetters() int { return int(p.deadLetters.Load()) }

// Run starts one worker loop per (registered name, slot) pair bounded by
// the starvation guard, and blocks until ctx is canceled or a fatal error
// occurs.
func (p *Pool) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)
	slots := p.poolSize - 1

	for name, handler := range p.handlers {
		name, handler := name, handler
		ch := p.queue.Channel(name)
		for i := 0; i < slots; i++ {
			group.Go(func() error {
				return p.workerLoop(gctx, name, handler, ch)
			})
		}
	}

	return group.Wait()
}

func (p *Pool) workerLoop(ctx context.Context, name types.TaskName, handler Handler, ch <-chan types.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			fatal := types.NewFatalError(fmt.Errorf("worker: handler %s panicked: %v", name, r))
			p.fatal <- fatal
			err = fatal
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case task, ok := <-ch:
			if !ok {
				return nil
			}
			p.runOne(ctx, task, handler)
		}
	}
}

func (p *Pool) runOne(ctx context.Context, task types.Task, handler Handler) {
	err := handler(ctx, task)
	if err == nil {
		if rmErr := p.store.RemoveTask(ctx, task); rmErr != nil {
			p.log.Printf("remove task %s/%s failed: %v", task.Name, task.Input.Key(), rmErr)
		}
		p.queue.Done(task)
		return
	}

	var transient *types.TransientError
	if !isTransient(err, &transient) {
		fatal := types.NewFatalError(err)
		p.fatal <- fatal
		return
	}

	if task.Retries >= maxTaskRetries {
		p.log.Printf("task %s/%s exhausted %d retries, dropping: %v", task.Name, task.Input.Key(), maxTaskRetries, err)
		p.deadLetters.Add(1)
		telemetry.RecordTaskDeadLetter(ctx, string(task.Name))
		if rmErr := p.store.RemoveTask(ctx, task); rmErr != nil {
			p.log.Printf("remove dead-lettered task failed: %v", rmErr)
		}
		p.queue.Done(task)
		return
	}

	task.Retries++
	if incErr := p.store.IncrementTaskRetries(ctx, task); incErr != nil {
		p.log.Printf("increment retries for %s/%s failed: %v", task.Name, task.Input.Key(), incErr)
	}
	p.queue.Done(task)

	delay := retryDelay(task.Retries)
	p.log.Printf("task %s/%s failed transiently (retry %d/%d in %s): %v", task.Name, task.Input.Key(), task.Retries, maxTaskRetries, delay, err)

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if err := p.queue.Enqueue(context.Background(), task); err != nil {
			p.log.Printf("requeue %s/%s failed: %v", task.Name, task.Input.Key(), err)
		}
	}()
}

func isTransient(err error, out **types.TransientError) bool {
	te, ok := err.(*types.TransientError)
	if ok {
		*out = te
	}
	return ok
}

// retryDelay returns the exponential backoff delay for the nth retry
// (1-indexed), clamped to the policy's base/max.
func retryDelay(attempt int) time.Duration {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.1

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = bo.NextBackOff()
	}
	return d
}
