// Package queue holds the broker contracts shared by ingestion, the
// indexing worker and outcome publishing.
package queue

import "context"

// Enqueuer publishes raw event payloads. Enqueue returns once the broker
// has acknowledged data or ctx ends.
type Enqueuer interface {
	Enqueue(ctx context.Context, topic string, data []byte) error
	Close() error
}

// MessageHandler processes one payload. Returning an error stops the
// current claim without committing the message, so it is redelivered.
type MessageHandler func(ctx context.Context, data []byte) error

// Dequeuer feeds every message on topic to handler and blocks until ctx
// ends or the consumer is closed.
type Dequeuer interface {
	Dequeue(ctx context.Context, topic string, handler MessageHandler) error
	Close() error
}
