package trigger

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultQueueKey = "augury:triggers:order_created"

// RedisQueue is a Redis-list-backed trigger queue. LPUSH/BRPOP gives FIFO
// delivery to exactly one worker per message; a crash between BRPOP and the
// handler completing loses at most that delivery's attempt, which the expiry
// sweep eventually covers.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue on the given key; an empty key uses the default.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = defaultQueueKey
	}
	return &RedisQueue{client: client, key: key}
}

// Enqueue records an order id for matching.
func (q *RedisQueue) Enqueue(ctx context.Context, orderID string) error {
	return q.client.LPush(ctx, q.key, orderID).Err()
}

// Dequeue blocks until an order id arrives or the context ends. The short
// BRPOP timeout keeps the loop responsive to cancellation.
func (q *RedisQueue) Dequeue(ctx context.Context) (string, error) {
	for {
		vals, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				default:
					continue
				}
			}
			return "", err
		}
		// BRPOP returns [key, value].
		return vals[1], nil
	}
}
