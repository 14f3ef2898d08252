package event

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/stretchr/testify/require"
	"github.com/viant/valen/service/messaging"
	"github.com/viant/valen/service/messaging/fs"
	"github.com/viant/valen/service/messaging/memory"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestService_PublishDrain(t *testing.T) {
	testCases := []struct {
		description string
		vendor      messaging.Vendor
	}{
		{description: "memory", vendor: messaging.VendorMemory},
		{description: "fs", vendor: messaging.VendorFS},
	}
	for _, tc := range testCases {
		options := []Option{WithBootID("boot-1"), WithLogger(quiet)}
		if tc.vendor == messaging.VendorFS {
			options = append(options, WithFSConfig(fs.Config{BaseURL: t.TempDir(), KeepDone: true}))
		}
		s, err := New(tc.vendor, options...)
		require.NoError(t, err, tc.description)
		ctx := context.Background()

		require.NoError(t, Publish(ctx, s, KindTaskCreated, 1, Task{ID: 1, Name: "init", State: "running"}), tc.description)
		require.NoError(t, Publish(ctx, s, KindTaskExited, 1, Task{ID: 1, Name: "init", State: "zombie", ExitCode: 3}), tc.description)

		n, err := s.Drain(ctx)
		require.NoError(t, err, tc.description)
		assert.Equal(t, 2, n, tc.description)
		events := s.Journal().Events()
		require.Len(t, events, 2, tc.description)
		assert.Equal(t, KindTaskCreated, events[0].Context.Kind, tc.description)
		assert.Equal(t, KindTaskExited, events[1].Context.Kind, tc.description)
		assert.Equal(t, "boot-1", events[1].Context.BootID, tc.description)
		assert.Contains(t, events[1].String(), "task.exited", tc.description)

		n, err = s.Drain(ctx)
		assert.NoError(t, err, tc.description)
		assert.Zero(t, n, tc.description)
	}
}

func TestService_DropsWhenFull(t *testing.T) {
	s, err := New(messaging.VendorMemory, WithMemoryConfig(memory.Config{Buffer: 1, DropWhenFull: true}), WithLogger(quiet))
	require.NoError(t, err)
	ctx := context.Background()
	assert.NoError(t, Publish(ctx, s, KindPageFault, 0, Fault{Addr: 0x1000}))
	assert.ErrorIs(t, Publish(ctx, s, KindPageFault, 0, Fault{Addr: 0x2000}), messaging.ErrQueueFull)
}

func TestService_Follow(t *testing.T) {
	s, err := New(messaging.VendorMemory, WithLogger(quiet))
	require.NoError(t, err)
	seen := make(chan *Event[any], 4)
	s.Follow(func(e *Event[any]) { seen <- e })
	defer s.Stop()

	require.NoError(t, Publish(context.Background(), s, KindBooted, 0, Kernel{Message: "up"}))
	select {
	case e := <-seen:
		assert.Equal(t, KindBooted, e.Context.Kind)
		assert.Equal(t, "up", e.Data.(Kernel).Message)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not deliver the event")
	}
	assert.Eventually(t, func() bool { return s.Journal().Len() == 1 }, time.Second, time.Millisecond)
}

func TestService_UnsupportedVendor(t *testing.T) {
	_, err := New("kafka")
	assert.Error(t, err)
}

func TestJournal(t *testing.T) {
	j := NewJournal(2)
	for i := 1; i <= 3; i++ {
		j.Append(NewEvent[any](&Context{Kind: KindTaskReaped, TaskID: int64(i)}, nil))
	}
	events := j.Events()
	require.Len(t, events, 2)
	assert.EqualValues(t, 2, events[0].Context.TaskID)
	assert.EqualValues(t, 3, events[1].Context.TaskID)
}

// countingFS counts uploads made through the wrapped service.
type countingFS struct {
	afs.Service
	uploads atomic.Int32
}

func (c *countingFS) Upload(ctx context.Context, URL string, mode os.FileMode, reader io.Reader, options ...storage.Option) error {
	c.uploads.Add(1)
	return c.Service.Upload(ctx, URL, mode, reader, options...)
}

func TestService_WithFS(t *testing.T) {
	counting := &countingFS{Service: afs.New()}
	s, err := New(messaging.VendorFS, WithFS(counting), WithFSConfig(fs.Config{BaseURL: t.TempDir()}), WithLogger(quiet))
	require.NoError(t, err)
	require.NoError(t, Publish(context.Background(), s, KindBooted, 0, Kernel{Message: "up"}))
	assert.Positive(t, counting.uploads.Load())
}

func TestService_FollowThenDrain(t *testing.T) {
	s, err := New(messaging.VendorMemory, WithLogger(quiet))
	require.NoError(t, err)
	var handled atomic.Int32
	s.Follow(func(e *Event[any]) { handled.Add(1) })
	assert.True(t, s.Following())
	s.Stop()
	assert.False(t, s.Following())

	require.NoError(t, Publish(context.Background(), s, KindHalted, 0, Kernel{Message: "stop"}))
	n, err := s.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.EqualValues(t, 1, handled.Load(), "drained events still reach the follower")
}
