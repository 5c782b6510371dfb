// Package workqueue provides a bounded FIFO handoff between a producer (the
// accept loop) and a fixed set of consumers (the worker pool).
//
// The queue is backed by a buffered channel, so ordering and exactly-once
// delivery come from the Go runtime: every pushed item is received by
// exactly one Pop call, in push order.
package workqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrClosed is returned by Push after Close, and by Pop once the queue
	// is closed and fully drained.
	ErrClosed = errors.New("work queue closed")
)

// Queue is a bounded FIFO queue of items of type T.
//
// Push blocks while the queue is full (backpressure on the producer) and Pop
// blocks while it is empty. Both accept a context so that a shutting-down
// server can abandon a blocked call.
//
// Thread safety:
// All methods are safe for concurrent use by any number of producers and
// consumers.
type Queue[T any] struct {
	items chan T

	// mu serializes Close against in-flight Push calls so that a send on a
	// closed channel can never happen. Push holds the read side.
	mu     sync.RWMutex
	closed bool
}

// New creates a queue holding at most capacity items.
//
// Returns an error if capacity is not positive.
func New[T any](capacity int) (*Queue[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid queue capacity %d: must be > 0", capacity)
	}

	return &Queue[T]{
		items: make(chan T, capacity),
	}, nil
}

// Push appends item to the tail of the queue, blocking until a slot is free.
//
// Returns:
//   - nil once the item is enqueued
//   - ErrClosed if the queue was closed
//   - ctx.Err() if the context ends while waiting for a free slot
func (q *Queue[T]) Push(ctx context.Context, item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}

	select {
	case q.items <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop removes and returns the item at the head of the queue, blocking until
// one is available.
//
// After Close, Pop keeps returning the remaining items and then ErrClosed.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	select {
	case item, ok := <-q.items:
		if !ok {
			var zero T
			return zero, ErrClosed
		}
		return item, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Close stops the queue from accepting new items. Items already queued are
// still delivered to consumers. Close waits for any Push currently blocked
// on a full queue, so consumers must keep popping while it runs or the
// producer's context must be cancelled.
//
// Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.items)
}

// Len returns the number of items currently buffered.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return cap(q.items)
}
