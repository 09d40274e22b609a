package messaging

import (
	"context"
	"time"
)

// Delivery is a message handed out by Fetch and acknowledged with Commit.
type Delivery struct {
	Topic      string
	Payload    []byte
	ConsumerID string

	// Handle is backend specific state needed to commit the delivery.
	Handle any
}

// Transport moves job payloads through the broker.
type Transport interface {
	// Publish appends a payload to a topic. No partition key is used.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Fetch waits up to timeout for the next message on topic for the given
	// consumer. It returns a nil Delivery when nothing arrived in time.
	Fetch(ctx context.Context, topic, consumerID string, timeout time.Duration) (*Delivery, error)

	// Commit acknowledges a delivery so it is not handed out again.
	Commit(ctx context.Context, d *Delivery) error

	Close() error
}

// Extender is implemented by transports whose uncommitted deliveries are
// handed out again after a visibility timeout. Extend restarts that timeout.
type Extender interface {
	Extend(ctx context.Context, d *Delivery) error
}

// Admin manages broker topics.
type Admin interface {
	ListTopics(ctx context.Context) ([]string, error)
	CreateTopics(ctx context.Context, names []string, partitions int) error
	DeleteTopics(ctx context.Context, names []string) error
}
