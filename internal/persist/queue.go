package persist

import (
	"context"
	"errors"
)

var ErrQueueSaturated = errors.New("persistence queue is full")

// Queue is the bounded, ordered buffer between ingestion and the worker.
// Multiple producers enqueue; exactly one worker drains. Global FIFO is kept,
// which is sufficient for the per-trip ordering guarantee.
type Queue struct {
	ch chan Intent
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{ch: make(chan Intent, capacity)}
}

// Enqueue blocks while the queue is full; a stalled storage backend turns
// into backpressure on the producer rather than a dropped intent.
func (q *Queue) Enqueue(ctx context.Context, intent Intent) error {
	select {
	case q.ch <- intent:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryEnqueue fails fast with ErrQueueSaturated instead of blocking.
func (q *Queue) TryEnqueue(intent Intent) error {
	select {
	case q.ch <- intent:
		return nil
	default:
		return ErrQueueSaturated
	}
}

func (q *Queue) Len() int {
	return len(q.ch)
}

// Close ends the intent stream. Producers must have stopped first; the worker
// then drains whatever is still buffered and exits.
func (q *Queue) Close() {
	close(q.ch)
}
