package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viant/valen/internal/idgen"
	"github.com/viant/valen/service/messaging"
)

// ErrProcessed is returned when a message is acknowledged twice.
var ErrProcessed = errors.New("memory: message already processed")

// Config configures the in-memory queue.
type Config struct {
	// Buffer is the queue capacity.
	Buffer int `json:"buffer" yaml:"buffer"`
	// DropWhenFull makes Publish fail with messaging.ErrQueueFull instead
	// of blocking.
	DropWhenFull bool `json:"dropWhenFull" yaml:"dropWhenFull"`
	// MaxRetries is the number of redeliveries after a Nack.
	MaxRetries int `json:"maxRetries" yaml:"maxRetries"`
}

// DefaultConfig returns the kernel event queue defaults.
func DefaultConfig() Config {
	return Config{Buffer: 256, DropWhenFull: true, MaxRetries: 1}
}

// Message is an in-memory queue message.
type Message[T any] struct {
	ID        string
	CreatedAt time.Time
	payload   T
	queue     *Queue[T]
	retries   int
	mux       sync.Mutex
	processed bool
}

// T returns the payload.
func (m *Message[T]) T() *T { return &m.payload }

// Ack marks the message processed.
func (m *Message[T]) Ack() error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.processed {
		return ErrProcessed
	}
	m.processed = true
	return nil
}

// Nack marks the message failed and redelivers it while retries remain;
// exhausted messages go to the dead-letter list.
func (m *Message[T]) Nack(err error) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.processed {
		return ErrProcessed
	}
	m.processed = true
	if m.retries < m.queue.config.MaxRetries {
		retry := &Message[T]{ID: m.ID, CreatedAt: m.CreatedAt, payload: m.payload, queue: m.queue, retries: m.retries + 1}
		return m.queue.enqueue(context.Background(), retry)
	}
	m.queue.deadLetter(m)
	return nil
}

// Queue is a bounded in-memory messaging.Queue.
type Queue[T any] struct {
	messages chan *Message[T]
	config   Config
	dropped  atomic.Uint64
	dlqMux   sync.Mutex
	dlq      []*Message[T]
}

// NewQueue creates a queue.
func NewQueue[T any](config Config) *Queue[T] {
	if config.Buffer <= 0 {
		config.Buffer = DefaultConfig().Buffer
	}
	return &Queue[T]{
		messages: make(chan *Message[T], config.Buffer),
		config:   config,
	}
}

// Publish adds t to the queue.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	return q.enqueue(ctx, &Message[T]{ID: idgen.New(), CreatedAt: time.Now(), payload: *t, queue: q})
}

// Consume waits for the next message.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	select {
	case msg := <-q.messages:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryConsume returns the next message without waiting.
func (q *Queue[T]) TryConsume() (messaging.Message[T], bool) {
	select {
	case msg := <-q.messages:
		return msg, true
	default:
		return nil, false
	}
}

// Size returns the number of queued messages.
func (q *Queue[T]) Size() int { return len(q.messages) }

// Dropped returns the number of messages refused because the queue was full.
func (q *Queue[T]) Dropped() uint64 { return q.dropped.Load() }

// DLQSize returns the number of dead-lettered messages.
func (q *Queue[T]) DLQSize() int {
	q.dlqMux.Lock()
	defer q.dlqMux.Unlock()
	return len(q.dlq)
}

func (q *Queue[T]) enqueue(ctx context.Context, msg *Message[T]) error {
	if q.config.DropWhenFull {
		select {
		case q.messages <- msg:
			return nil
		default:
			q.dropped.Add(1)
			return messaging.ErrQueueFull
		}
	}
	select {
	case q.messages <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue[T]) deadLetter(msg *Message[T]) {
	q.dlqMux.Lock()
	q.dlq = append(q.dlq, msg)
	q.dlqMux.Unlock()
}

var _ messaging.Queue[any] = (*Queue[any])(nil)
