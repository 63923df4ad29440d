package trigger

import "context"

// MemoryQueue is a channel-backed queue for tests and in-process wiring.
type MemoryQueue struct {
	ch chan string
}

// NewMemoryQueue builds a buffered in-memory queue.
func NewMemoryQueue(size int) *MemoryQueue {
	if size < 1 {
		size = 1024
	}
	return &MemoryQueue{ch: make(chan string, size)}
}

// Enqueue records an order id, blocking if the buffer is full.
func (q *MemoryQueue) Enqueue(ctx context.Context, orderID string) error {
	select {
	case q.ch <- orderID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until an order id arrives or the context ends.
func (q *MemoryQueue) Dequeue(ctx context.Context) (string, error) {
	select {
	case orderID := <-q.ch:
		return orderID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Len reports the number of pending deliveries. Test helper.
func (q *MemoryQueue) Len() int { return len(q.ch) }
