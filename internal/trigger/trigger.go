// Package trigger delivers "order created" intents to the matching engine
// after the creating flow has committed. Delivery is at-least-once with no
// ordering guarantee; consumers are idempotent against redelivery because a
// matching pass over a terminal order is a no-op.
package trigger

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Enqueuer records an intent to match an order.
type Enqueuer interface {
	Enqueue(ctx context.Context, orderID string) error
}

// Queue is the transport between order creation and the matching workers.
type Queue interface {
	Enqueuer
	// Dequeue blocks until an order id is available or the context ends.
	Dequeue(ctx context.Context) (string, error)
}

// Handler processes one delivered order id.
type Handler func(ctx context.Context, orderID string) error

// Workers consumes the queue with a fixed-size pool. A failed delivery is
// re-enqueued and the worker backs off before its next dequeue, preserving
// at-least-once semantics without spinning on a poisoned order.
type Workers struct {
	queue   Queue
	handle  Handler
	count   int
	logger  *slog.Logger
	backoff time.Duration
}

// NewWorkers builds a worker pool of the given size.
func NewWorkers(queue Queue, handle Handler, count int, logger *slog.Logger) *Workers {
	if count < 1 {
		count = 1
	}
	return &Workers{queue: queue, handle: handle, count: count, logger: logger, backoff: time.Second}
}

// Run blocks draining the queue until the context is cancelled.
func (w *Workers) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.count; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
}

func (w *Workers) loop(ctx context.Context) {
	for {
		orderID, err := w.queue.Dequeue(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			w.logger.Error("dequeue order trigger", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.backoff):
			}
			continue
		}
		if err := w.handle(ctx, orderID); err != nil {
			w.logger.Error("match order", "order_id", orderID, "error", err)
			if err := w.queue.Enqueue(ctx, orderID); err != nil {
				w.logger.Error("requeue order trigger", "order_id", orderID, "error", err)
			}
			// A persistently failing order would otherwise spin hot
			// through dequeue and requeue.
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.backoff):
			}
		}
	}
}
