package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "queue:"

// RedisQueue implements Queue on Redis lists. LPUSH/BRPOP gives FIFO
// delivery with each message popped by exactly one consumer, which is
// what keeps two workers from executing the same message.
type RedisQueue struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewRedisQueue creates a queue backed by the given Redis client. The
// client's lifecycle is owned by the caller.
func NewRedisQueue(client redis.UniversalClient, logger *slog.Logger) (*RedisQueue, error) {
	if client == nil {
		return nil, errors.New("queue: redis client is nil")
	}
	if logger == nil {
		return nil, errors.New("queue: logger is nil")
	}
	return &RedisQueue{
		client: client,
		logger: logger.With("component", "redis_queue"),
	}, nil
}

// Enqueue appends the payload to the named queue.
func (q *RedisQueue) Enqueue(ctx context.Context, queue string, payload []byte) error {
	if queue == "" {
		return errors.New("queue: queue name is empty")
	}
	if err := q.client.LPush(ctx, keyPrefix+queue, payload).Err(); err != nil {
		return fmt.Errorf("queue: enqueue on %q: %w", queue, err)
	}
	q.logger.Debug("message enqueued", "queue", queue, "payload_bytes", len(payload))
	return nil
}

// Dequeue blocks up to wait for the next message on any of the given
// queues. BRPOP checks keys in argument order, so earlier queues win.
func (q *RedisQueue) Dequeue(ctx context.Context, queues []string, wait time.Duration) (*Delivery, error) {
	if len(queues) == 0 {
		return nil, errors.New("queue: no queues given")
	}

	keys := make([]string, len(queues))
	for i, name := range queues {
		keys[i] = keyPrefix + name
	}

	result, err := q.client.BRPop(ctx, wait, keys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoMessage
		}
		return nil, fmt.Errorf("queue: dequeue: %w", err)
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("queue: unexpected BRPOP reply of length %d", len(result))
	}

	delivery := &Delivery{
		Queue:   result[0][len(keyPrefix):],
		Payload: []byte(result[1]),
	}
	q.logger.Debug("message dequeued", "queue", delivery.Queue, "payload_bytes", len(delivery.Payload))
	return delivery, nil
}
