package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/valen/service/messaging"
)

type record struct {
	Kind string
	ID   int
}

func TestQueue_PublishConsume(t *testing.T) {
	queue := NewQueue[record](DefaultConfig())
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		require.NoError(t, queue.Publish(ctx, &record{Kind: "task.created", ID: i}))
	}
	assert.Equal(t, 3, queue.Size())

	for i := 1; i <= 3; i++ {
		msg, err := queue.Consume(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, msg.T().ID, "messages are delivered in order")
		assert.NoError(t, msg.Ack())
		assert.ErrorIs(t, msg.Ack(), ErrProcessed)
	}
	_, ok := queue.TryConsume()
	assert.False(t, ok)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := queue.Consume(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueue_DropWhenFull(t *testing.T) {
	queue := NewQueue[record](Config{Buffer: 2, DropWhenFull: true})
	ctx := context.Background()
	assert.NoError(t, queue.Publish(ctx, &record{ID: 1}))
	assert.NoError(t, queue.Publish(ctx, &record{ID: 2}))
	assert.ErrorIs(t, queue.Publish(ctx, &record{ID: 3}), messaging.ErrQueueFull)
	assert.EqualValues(t, 1, queue.Dropped())
	assert.Equal(t, 2, queue.Size())
}

func TestQueue_BlockingPublish(t *testing.T) {
	queue := NewQueue[record](Config{Buffer: 1})
	require.NoError(t, queue.Publish(context.Background(), &record{ID: 1}))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, queue.Publish(ctx, &record{ID: 2}), context.DeadlineExceeded)
}

func TestQueue_Nack(t *testing.T) {
	queue := NewQueue[record](Config{Buffer: 4, MaxRetries: 1})
	ctx := context.Background()
	require.NoError(t, queue.Publish(ctx, &record{ID: 1}))

	msg, ok := queue.TryConsume()
	require.True(t, ok)
	require.NoError(t, msg.Nack(errors.New("listener failed")))
	assert.ErrorIs(t, msg.Nack(nil), ErrProcessed)

	retry, ok := queue.TryConsume()
	require.True(t, ok, "a nacked message is redelivered")
	assert.Equal(t, 1, retry.T().ID)
	require.NoError(t, retry.Nack(errors.New("again")))
	assert.Zero(t, queue.Size())
	assert.Equal(t, 1, queue.DLQSize())
}
