package messaging

import (
	"context"
	"errors"
)

// Vendor names a queue implementation.
type Vendor string

const (
	// VendorMemory is the in-process bounded queue.
	VendorMemory Vendor = "memory"
	// VendorFS is the file-backed queue.
	VendorFS Vendor = "fs"
)

// ErrQueueFull is returned by a non-blocking Publish on a full queue.
var ErrQueueFull = errors.New("messaging: queue full")

// Queue is a message queue for one payload type.
type Queue[T any] interface {
	// Publish adds a message with payload t.
	Publish(ctx context.Context, t *T) error

	// Consume retrieves a single message. Implementations may return a nil
	// message when nothing is available.
	Consume(ctx context.Context) (Message[T], error)
}

// Message is a message retrieved from a queue.
type Message[T any] interface {
	// T returns the payload.
	T() *T

	// Ack acknowledges successful processing.
	Ack() error

	// Nack reports failed processing.
	Nack(err error) error
}
