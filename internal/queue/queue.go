// Package queue provides the named task queues shared by the HTTP edge
// and the worker pool. Each queued message is delivered to exactly one
// consumer.
package queue

import (
	"context"
	"errors"
	"time"
)

// Well-known queue names. Workers drain queues in the order given to
// Dequeue, so listing the high-priority queue first gives its messages
// precedence without a scheduler.
const (
	QueueDefault      = "default"
	QueueHighPriority = "high_priority"
)

// ErrNoMessage is returned by Dequeue when no message arrived within the
// wait window.
var ErrNoMessage = errors.New("queue: no message available")

// Delivery is one dequeued message together with the queue it came from.
type Delivery struct {
	Queue   string
	Payload []byte
}

// Enqueuer provides write access to named queues, allowing the
// dispatcher to submit work without the ability to consume it.
type Enqueuer interface {
	// Enqueue appends the payload to the named queue.
	Enqueue(ctx context.Context, queue string, payload []byte) error
}

// Dequeuer provides read access to named queues for workers.
type Dequeuer interface {
	// Dequeue blocks up to wait for the next message on any of the given
	// queues, checking them in order. Returns ErrNoMessage when the wait
	// window elapses without a message.
	Dequeue(ctx context.Context, queues []string, wait time.Duration) (*Delivery, error)
}

// Queue combines both sides for implementations that serve dispatchers
// and workers from one client.
type Queue interface {
	Enqueuer
	Dequeuer
}
