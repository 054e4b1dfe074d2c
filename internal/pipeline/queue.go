package pipeline

import (
	"context"
	"time"

	"dcollect/internal/event"
)

// IngestQueue is a bounded FIFO buffer between the producer and dispatchers.
// Backed by a buffered channel: enqueue/dequeue are safe for concurrent use
// and FIFO order is intrinsic.
// Params: fixed capacity set at construction.
// Returns: queue handle shared by pipeline tasks.
type IngestQueue struct {
	ch chan event.Event
}

// NewIngestQueue creates a bounded event queue.
// Params: capacity maximum buffered events (values < 1 are clamped to 1).
// Returns: empty queue.
func NewIngestQueue(capacity int) *IngestQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &IngestQueue{ch: make(chan event.Event, capacity)}
}

// TryEnqueue appends the event without blocking.
// Params: ev event to buffer.
// Returns: false when the queue is full.
func (q *IngestQueue) TryEnqueue(ev event.Event) bool {
	select {
	case q.ch <- ev:
		return true
	default:
		return false
	}
}

// Enqueue appends the event, blocking until space frees up.
// Params: ctx bounds the wait; ev event to buffer.
// Returns: ctx error when canceled before space frees up.
func (q *IngestQueue) Enqueue(ctx context.Context, ev event.Event) error {
	select {
	case q.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue removes the oldest event, waiting up to poll for one to arrive.
// Params: ctx bounds the wait; poll maximum wait for an event.
// Returns: event and true on success, false on poll expiry, error on ctx cancel.
func (q *IngestQueue) Dequeue(ctx context.Context, poll time.Duration) (event.Event, bool, error) {
	timer := time.NewTimer(poll)
	defer timer.Stop()

	select {
	case ev := <-q.ch:
		return ev, true, nil
	case <-timer.C:
		return event.Event{}, false, nil
	case <-ctx.Done():
		return event.Event{}, false, ctx.Err()
	}
}

// Len reports the buffered event count.
// Params: none.
// Returns: current queue depth.
func (q *IngestQueue) Len() int {
	return len(q.ch)
}

// Cap reports the fixed queue capacity.
// Params: none.
// Returns: capacity set at construction.
func (q *IngestQueue) Cap() int {
	return cap(q.ch)
}
