// Package memory provides the bounded in-process page queues feeding workers.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/wikicorpus/internal/corpus"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded page queue with context-aware operations. Enqueue
// blocks while the queue is full, which is how a slow lane pushes back on
// the scanner.
type Queue struct {
	ch      chan corpus.RawPage
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan corpus.RawPage, capacity),
	}
}

// Enqueue pushes a page into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, page corpus.RawPage) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- page:
		return nil
	}
}

// Dequeue pops the next page, respecting context cancellation. Pages queued
// before Close are still delivered; ErrClosed follows the last one.
func (q *Queue) Dequeue(ctx context.Context) (corpus.RawPage, error) {
	select {
	case <-ctx.Done():
		return corpus.RawPage{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case page, ok := <-q.ch:
		if !ok {
			return corpus.RawPage{}, ErrClosed
		}
		return page, nil
	}
}

// Len reports how many pages are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops further enqueues. It must not race with Enqueue.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
