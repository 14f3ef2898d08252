package event

import (
	"context"
	"log/slog"
	"time"

	"github.com/viant/valen/service/messaging"
)

// pollInterval is how long a listener waits when the queue reports nothing
// available without blocking.
const pollInterval = 20 * time.Millisecond

// Listener consumes events on its own goroutine.
type Listener[T any] struct {
	queue   messaging.Queue[Event[T]]
	handler func(*Event[T])
	logger  *slog.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewListener creates a stopped listener.
func NewListener[T any](queue messaging.Queue[Event[T]], handler func(*Event[T]), logger *slog.Logger) *Listener[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener[T]{queue: queue, handler: handler, logger: logger}
}

// Start begins consuming.
func (l *Listener[T]) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		for {
			msg, err := l.queue.Consume(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				l.logger.Error("failed to consume event", "error", err)
			}
			if msg == nil {
				select {
				case <-ctx.Done():
					return
				case <-time.After(pollInterval):
				}
				continue
			}
			l.handler(msg.T())
			if err = msg.Ack(); err != nil {
				l.logger.Error("failed to ack event", "error", err)
			}
		}
	}()
}

// Stop cancels consumption and waits for the goroutine to exit.
func (l *Listener[T]) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	l.cancel = nil
}
