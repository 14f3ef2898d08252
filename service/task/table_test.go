package task

import (
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/valen/model/mem"
	"github.com/viant/valen/runtime/cpu"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeHeap hands out addresses from a bump pointer and fails once budget
// allocations have been made.
type fakeHeap struct {
	next   mem.VirtAddr
	budget int
	live   map[mem.VirtAddr]bool
}

func newFakeHeap(budget int) *fakeHeap {
	return &fakeHeap{next: 0x10000, budget: budget, live: map[mem.VirtAddr]bool{}}
}

func (f *fakeHeap) Allocate(size uint64) (mem.VirtAddr, bool) {
	if f.budget == 0 {
		return 0, false
	}
	f.budget--
	addr := f.next
	f.next += mem.VirtAddr(mem.AlignUp(size, 16))
	f.live[addr] = true
	return addr, true
}

func (f *fakeHeap) Free(addr mem.VirtAddr) error {
	if !f.live[addr] {
		return fmt.Errorf("bad free %v", addr)
	}
	delete(f.live, addr)
	return nil
}

func names(tasks []*Task) []string {
	var ret []string
	for _, task := range tasks {
		ret = append(ret, task.Name)
	}
	return ret
}

func TestTable_Create(t *testing.T) {
	table := NewTable(newFakeHeap(-1), WithLogger(quiet))
	entry := func() {}
	h, err := table.Create(entry, "shell", Handle{})
	require.NoError(t, err)
	task, ok := table.Get(h)
	require.True(t, ok)

	assert.EqualValues(t, 1, task.ID)
	assert.Equal(t, "shell", task.Name)
	assert.Equal(t, Running, task.State)
	assert.True(t, task.Parent.IsZero())
	assert.EqualValues(t, DefaultStackSize, task.StackSize)
	assert.Zero(t, task.StackTop()%StackAlignment)
	assert.EqualValues(t, task.StackTop(), task.Context.RSP)
	assert.EqualValues(t, cpu.KernelCodeSelector, task.Context.CS)
	assert.EqualValues(t, cpu.KernelDataSelector, task.Context.SS)
	assert.EqualValues(t, cpu.FlagsInterruptsEnabled, task.Context.RFlags)
	assert.NotZero(t, task.Context.RIP)
	assert.Equal(t, h, task.Handle())

	child, err := table.Create(entry, "", h)
	require.NoError(t, err)
	task, _ = table.Get(child)
	assert.Equal(t, DefaultName, task.Name)
	assert.Equal(t, h, task.Parent)
	assert.EqualValues(t, 2, task.ID)
}

func TestTable_Names(t *testing.T) {
	testCases := []struct {
		description string
		name        string
		expect      string
	}{
		{description: "empty", name: "", expect: "unknown"},
		{description: "short", name: "idle", expect: "idle"},
		{description: "limit", name: "fifteen-bytes!!", expect: "fifteen-bytes!!"},
		{description: "truncated", name: "a-name-well-over-the-limit", expect: "a-name-well-ove"},
		{description: "rune straddling the limit", name: "kernel-wörkerñ-2", expect: "kernel-wörker"},
		{description: "rune ending at the limit", name: "kernel-wörker-ñ!", expect: "kernel-wörker-"},
	}
	table := NewTable(newFakeHeap(-1))
	for _, tc := range testCases {
		h, err := table.Create(nil, tc.name, Handle{})
		require.NoError(t, err, tc.description)
		task, _ := table.Get(h)
		assert.Equal(t, tc.expect, task.Name, tc.description)
	}
}

func TestTable_CreateOutOfMemory(t *testing.T) {
	testCases := []struct {
		description string
		budget      int
	}{
		{description: "no control block", budget: 0},
		{description: "no stack", budget: 1},
	}
	for _, tc := range testCases {
		heap := newFakeHeap(tc.budget)
		table := NewTable(heap, WithLogger(quiet))
		_, err := table.Create(nil, "t", Handle{})
		assert.ErrorIs(t, err, ErrOutOfMemory, tc.description)
		assert.Empty(t, heap.live, tc.description)
		assert.Zero(t, table.Len(), tc.description)
	}
}

func TestTable_QueueOrder(t *testing.T) {
	table := NewTable(newFakeHeap(-1))
	a, _ := table.Create(nil, "A", Handle{})
	b, _ := table.Create(nil, "B", Handle{})
	c, _ := table.Create(nil, "C", Handle{})

	assert.Equal(t, []string{"C", "B", "A"}, names(table.Queue()))
	head, ok := table.Head()
	require.True(t, ok)
	assert.Equal(t, c, head)
	next, _ := table.Next(a)
	assert.Equal(t, c, next, "the queue is circular")
	require.NoError(t, table.Verify())

	require.NoError(t, table.Remove(c))
	head, _ = table.Head()
	assert.Equal(t, b, head, "removing the head advances it")
	assert.Equal(t, []string{"B", "A"}, names(table.Queue()))
	assert.ErrorIs(t, table.Remove(c), ErrNotQueued)

	require.NoError(t, table.Remove(a))
	require.NoError(t, table.Remove(b))
	_, ok = table.Head()
	assert.False(t, ok)
	assert.Zero(t, table.Len())
	require.NoError(t, table.Verify())

	require.NoError(t, table.InsertHead(a))
	next, _ = table.Next(a)
	assert.Equal(t, a, next, "a single task links to itself")
	require.NoError(t, table.InsertHead(a))
	assert.Equal(t, 1, table.Len(), "inserting a queued task is a no-op")
}

func TestTable_FindByID(t *testing.T) {
	table := NewTable(newFakeHeap(-1))
	a, _ := table.Create(nil, "A", Handle{})
	b, _ := table.Create(nil, "B", Handle{})

	testCases := []struct {
		description string
		id          ID
		expect      Handle
		found       bool
	}{
		{description: "first", id: 1, expect: a, found: true},
		{description: "second", id: 2, expect: b, found: true},
		{description: "missing", id: 9},
		{description: "zero", id: 0},
		{description: "negative", id: -1},
	}
	for _, tc := range testCases {
		h, ok := table.FindByID(tc.id)
		assert.Equal(t, tc.found, ok, tc.description)
		assert.Equal(t, tc.expect, h, tc.description)
	}

	require.NoError(t, table.Remove(a))
	_, ok := table.FindByID(1)
	assert.False(t, ok, "only queued tasks are found")
	h, ok := table.Lookup(1)
	assert.True(t, ok)
	assert.Equal(t, a, h)
}

func TestTable_Release(t *testing.T) {
	heap := newFakeHeap(-1)
	table := NewTable(heap)
	a, _ := table.Create(nil, "A", Handle{})
	assert.ErrorIs(t, table.Release(a), ErrQueued)

	require.NoError(t, table.Remove(a))
	require.NoError(t, table.Release(a))
	assert.Empty(t, heap.live)
	assert.ErrorIs(t, table.Release(a), ErrStale, "second release is refused")
	_, ok := table.Get(a)
	assert.False(t, ok)

	b, _ := table.Create(nil, "B", Handle{})
	assert.NotEqual(t, a, b, "slot reuse yields a new generation")
	_, ok = table.Get(a)
	assert.False(t, ok)
	assert.ErrorIs(t, table.InsertHead(a), ErrStale)

	count := 0
	table.Each(func(task *Task) bool {
		count++
		return true
	})
	assert.Equal(t, 1, count)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "zombie", Zombie.String())
	assert.Equal(t, "Z", Zombie.Code())
	assert.Equal(t, "state(42)", State(42).String())
}
