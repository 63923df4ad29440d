package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/augury-markets/augury/internal/logging"
)

func TestRedisQueueRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	queue := NewRedisQueue(client, "test:triggers")
	ctx := context.Background()

	if err := queue.Enqueue(ctx, "order-1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := queue.Enqueue(ctx, "order-2"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	first, err := queue.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	second, err := queue.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if first != "order-1" || second != "order-2" {
		t.Fatalf("expected FIFO delivery, got %q then %q", first, second)
	}
}

func TestWorkersRetryFailedDelivery(t *testing.T) {
	queue := NewMemoryQueue(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})

	handle := func(_ context.Context, orderID string) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}

	workers := NewWorkers(queue, handle, 1, logging.Discard())
	workers.backoff = 10 * time.Millisecond
	go workers.Run(ctx)

	if err := queue.Enqueue(ctx, "order-1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery was not retried after failure")
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestWorkersBackOffAfterFailure(t *testing.T) {
	queue := NewMemoryQueue(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	attempts := 0
	handle := func(context.Context, string) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return errors.New("persistent")
	}

	workers := NewWorkers(queue, handle, 1, logging.Discard())
	workers.backoff = 500 * time.Millisecond
	go workers.Run(ctx)

	if err := queue.Enqueue(ctx, "order-1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Within half the backoff window the order must not have been retried.
	time.Sleep(250 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if attempts > 1 {
		t.Fatalf("worker retried %d times inside the backoff window", attempts)
	}
	if attempts == 0 {
		t.Fatal("worker never attempted the delivery")
	}
}

func TestWorkersStopOnCancel(t *testing.T) {
	queue := NewMemoryQueue(1)
	ctx, cancel := context.WithCancel(context.Background())

	workers := NewWorkers(queue, func(context.Context, string) error { return nil }, 2, logging.Discard())
	stopped := make(chan struct{})
	go func() {
		workers.Run(ctx)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop on context cancel")
	}
}
