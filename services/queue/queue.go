package queue

import "context"

// JobMessage is the payload carried by the queue; the job row holds the
// actual parameters.
type JobMessage struct {
	JobID string `json:"jobId"`
}

// Delivery is one attempt at handling a message.
type Delivery struct {
	ID      string
	Job     JobMessage
	Attempt int64
}

// Handler processes a delivery. A returned error leaves the message
// pending so it is redelivered later.
type Handler func(ctx context.Context, d Delivery) error

// Queue represents a durable job queue
type Queue interface {
	// Enqueue publishes a job and returns the message id
	Enqueue(ctx context.Context, msg JobMessage) (string, error)

	// Consume waits for at most one message and hands it to handler. It
	// returns nil when no message arrived within the block window.
	Consume(ctx context.Context, handler Handler) error

	// Close closes the queue connection
	Close() error
}
