// Package memory provides queue implementations for local development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

// ErrClosed is returned once the queue has been closed.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations.
// Nack puts a message back at the tail; Ack is a no-op.
type Queue struct {
	ch      chan []byte
	seq     atomic.Uint64
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan []byte, capacity)}
}

// Enqueue pushes a message into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, body []byte) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- append([]byte(nil), body...):
		return nil
	}
}

// Dequeue pops the next message, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (crawler.Delivery, error) {
	select {
	case <-ctx.Done():
		return crawler.Delivery{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case body, ok := <-q.ch:
		if !ok {
			return crawler.Delivery{}, ErrClosed
		}
		id := strconv.FormatUint(q.seq.Add(1), 10)
		nack := func(ctx context.Context) error { return q.Enqueue(ctx, body) }
		return crawler.NewDelivery(id, body, nil, nack), nil
	}
}

// Len reports the number of buffered messages.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() error {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return nil
	}
	close(q.ch)
	q.closed = true
	return nil
}
