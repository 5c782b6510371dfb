// Package worker runs a fixed set of goroutines that consume a work queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/marmos91/httpfs/internal/logger"
	"github.com/marmos91/httpfs/pkg/workqueue"
)

// HandleFunc processes one item. It owns the item exclusively for the
// duration of the call.
type HandleFunc[T any] func(ctx context.Context, workerID int, item T)

// Pool is a fixed number of long-lived workers, each looping
// pop -> handle until the queue is closed and drained or the context ends.
//
// A panic inside handle is recovered and logged; the worker keeps running.
type Pool[T any] struct {
	queue  *workqueue.Queue[T]
	size   int
	handle HandleFunc[T]

	// OnPanic, when set, is called with the item whose handler panicked,
	// after the panic has been recovered. Used to release per-item resources.
	OnPanic func(item T)

	wg      sync.WaitGroup
	started atomic.Bool
	busy    atomic.Int32
}

// NewPool creates a pool of size workers consuming queue.
func NewPool[T any](queue *workqueue.Queue[T], size int, handle HandleFunc[T]) (*Pool[T], error) {
	if queue == nil {
		return nil, errors.New("worker pool requires a queue")
	}
	if size <= 0 {
		return nil, fmt.Errorf("invalid worker count %d: must be > 0", size)
	}
	if handle == nil {
		return nil, errors.New("worker pool requires a handler")
	}

	return &Pool[T]{
		queue:  queue,
		size:   size,
		handle: handle,
	}, nil
}

// Start launches the workers. It must be called once.
//
// Workers stop when the queue is closed and empty, or when ctx is cancelled.
// Closing the queue is the graceful path: items already queued are handled.
func (p *Pool[T]) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		panic("worker: Pool.Start called twice")
	}

	p.wg.Add(p.size)
	for id := range p.size {
		go p.run(ctx, id)
	}
	logger.Debug("Started %d workers", p.size)
}

// Wait blocks until every worker has returned.
func (p *Pool[T]) Wait() {
	p.wg.Wait()
}

// Size returns the number of workers.
func (p *Pool[T]) Size() int {
	return p.size
}

// Busy returns the number of workers currently handling an item.
func (p *Pool[T]) Busy() int {
	return int(p.busy.Load())
}

func (p *Pool[T]) run(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		item, err := p.queue.Pop(ctx)
		if err != nil {
			if !errors.Is(err, workqueue.ErrClosed) && !errors.Is(err, context.Canceled) {
				logger.Warn("Worker %d stopped: %v", id, err)
			}
			return
		}
		p.process(ctx, id, item)
	}
}

func (p *Pool[T]) process(ctx context.Context, id int, item T) {
	p.busy.Add(1)
	defer func() {
		p.busy.Add(-1)
		if r := recover(); r != nil {
			logger.Error("Panic in worker %d: %v\n%s", id, r, debug.Stack())
			if p.OnPanic != nil {
				p.OnPanic(item)
			}
		}
	}()

	p.handle(ctx, id, item)
}
