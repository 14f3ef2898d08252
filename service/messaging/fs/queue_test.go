package fs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
)

type record struct {
	Kind string `json:"kind"`
	ID   int    `json:"id"`
}

func newTestQueue(t *testing.T, config Config) *Queue[record] {
	t.Helper()
	config.BaseURL = t.TempDir()
	queue, err := NewQueue[record](afs.New(), config)
	require.NoError(t, err)
	return queue
}

func count(t *testing.T, queue *Queue[record], state string) int {
	t.Helper()
	n, err := queue.Count(context.Background(), state)
	require.NoError(t, err)
	return n
}

func TestQueue_Order(t *testing.T) {
	queue := newTestQueue(t, Config{KeepDone: true})
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		require.NoError(t, queue.Publish(ctx, &record{Kind: "task.exited", ID: i}))
	}
	assert.Equal(t, 3, count(t, queue, dirPending))

	for i := 1; i <= 3; i++ {
		msg, err := queue.Consume(ctx)
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, i, msg.T().ID)
		assert.Equal(t, "task.exited", msg.T().Kind)
		assert.Equal(t, 1, count(t, queue, dirProcessing))
		require.NoError(t, msg.Ack())
		assert.ErrorIs(t, msg.Ack(), ErrProcessed)
	}
	msg, err := queue.Consume(ctx)
	assert.NoError(t, err)
	assert.Nil(t, msg)
	assert.Equal(t, 3, count(t, queue, dirDone))
	assert.Zero(t, count(t, queue, dirProcessing))
}

func TestQueue_Nack(t *testing.T) {
	queue := newTestQueue(t, Config{MaxRetries: 1})
	ctx := context.Background()
	require.NoError(t, queue.Publish(ctx, &record{ID: 7}))

	msg, err := queue.Consume(ctx)
	require.NoError(t, err)
	require.NoError(t, msg.Nack(errors.New("listener failed")))
	assert.Equal(t, 1, count(t, queue, dirPending), "first failure is retried")

	msg, err = queue.Consume(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.NoError(t, msg.Nack(errors.New("again")))
	assert.Zero(t, count(t, queue, dirPending))
	assert.Equal(t, 1, count(t, queue, dirDead))
}

func TestQueue_DropDone(t *testing.T) {
	queue := newTestQueue(t, Config{})
	ctx := context.Background()
	require.NoError(t, queue.Publish(ctx, &record{ID: 1}))
	msg, err := queue.Consume(ctx)
	require.NoError(t, err)
	require.NoError(t, msg.Ack())
	assert.Zero(t, count(t, queue, dirDone))
	assert.Zero(t, count(t, queue, dirProcessing))
}

func TestNewQueue_EmptyBase(t *testing.T) {
	_, err := NewQueue[record](afs.New(), Config{})
	assert.Error(t, err)
}
