// Package memory provides the in-process pending task queue shared by the
// worker slots of a run.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/matchweek-ingest/internal/capture"
)

// ErrClosed is returned by Dequeue once the queue is closed and empty.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory task queue with context-aware operations.
// Each task is delivered to exactly one consumer.
type Queue struct {
	ch      chan capture.Task
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan capture.Task, capacity),
	}
}

// Enqueue pushes a task into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, task capture.Task) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (capture.Task, error) {
	// A cancelled context wins over buffered work.
	if err := ctx.Err(); err != nil {
		return capture.Task{}, fmt.Errorf("dequeue canceled: %w", err)
	}
	select {
	case <-ctx.Done():
		return capture.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return capture.Task{}, ErrClosed
		}
		return task, nil
	}
}

// Drain removes and returns every task still buffered. Call it only after
// the queue is closed and all consumers have stopped.
func (q *Queue) Drain() []capture.Task {
	var out []capture.Task
	for {
		select {
		case task, ok := <-q.ch:
			if !ok {
				return out
			}
			out = append(out, task)
		default:
			return out
		}
	}
}

// Len reports the number of buffered tasks.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel; no further tasks may be enqueued.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
