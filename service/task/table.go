package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/viant/valen/model/mem"
	"github.com/viant/valen/runtime/cpu"
)

const none int32 = -1

// Allocator is the heap the table carves stacks and control blocks from.
type Allocator interface {
	Allocate(size uint64) (mem.VirtAddr, bool)
	Free(addr mem.VirtAddr) error
}

type slot struct {
	task *Task
	gen  uint32
}

// Table is the task arena together with the run queue threaded through it.
type Table struct {
	mux         sync.Mutex
	heap        Allocator
	slots       []slot
	vacant      []int32
	head        int32
	count       int
	lastID      ID
	stackSize   uint64
	controlSize uint64
	logger      *slog.Logger
}

// NewTable creates an empty table.
func NewTable(heap Allocator, options ...Option) *Table {
	ret := &Table{
		heap:        heap,
		head:        none,
		stackSize:   DefaultStackSize,
		controlSize: DefaultControlSize,
		logger:      slog.Default(),
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Create allocates a control block and a kernel stack for entry, prepares
// its initial context and puts it at the head of the run queue.
func (t *Table) Create(entry func(), name string, parent Handle) (Handle, error) {
	control, ok := t.heap.Allocate(t.controlSize)
	if !ok {
		return Handle{}, fmt.Errorf("failed to allocate control block for %q: %w", name, ErrOutOfMemory)
	}
	stack, ok := t.heap.Allocate(t.stackSize)
	if !ok {
		if err := t.heap.Free(control); err != nil {
			t.logger.Error("failed to free control block", "addr", control, "error", err)
		}
		return Handle{}, fmt.Errorf("failed to allocate stack for %q: %w", name, ErrOutOfMemory)
	}

	t.mux.Lock()
	defer t.mux.Unlock()
	t.lastID++
	task := &Task{
		ID:        t.lastID,
		Name:      truncateName(name),
		State:     Running,
		Parent:    parent,
		Stack:     stack,
		StackSize: t.stackSize,
		Control:   control,
		Entry:     entry,
		next:      none,
		prev:      none,
	}
	task.Context = cpu.NewContext(entry, uint64(task.StackTop()))
	task.handle = t.place(task)
	t.insertHead(task)
	return task.handle, nil
}

// Get resolves a handle.
func (t *Table) Get(h Handle) (*Task, bool) {
	t.mux.Lock()
	defer t.mux.Unlock()
	task := t.resolve(h)
	return task, task != nil
}

// InsertHead puts the task at the head of the run queue.
func (t *Table) InsertHead(h Handle) error {
	t.mux.Lock()
	defer t.mux.Unlock()
	task := t.resolve(h)
	if task == nil {
		return fmt.Errorf("%w: %v", ErrStale, h)
	}
	if task.queued {
		return nil
	}
	t.insertHead(task)
	return nil
}

// Remove unlinks the task from the run queue and clears its links.
func (t *Table) Remove(h Handle) error {
	t.mux.Lock()
	defer t.mux.Unlock()
	task := t.resolve(h)
	if task == nil {
		return fmt.Errorf("%w: %v", ErrStale, h)
	}
	if !task.queued {
		return fmt.Errorf("%w: %v", ErrNotQueued, task)
	}
	if task.next == h.slot {
		t.head = none
	} else {
		t.slots[task.prev].task.next = task.next
		t.slots[task.next].task.prev = task.prev
		if t.head == h.slot {
			t.head = task.next
		}
	}
	task.next, task.prev = none, none
	task.queued = false
	t.count--
	return nil
}

// Head returns the task at the head of the run queue.
func (t *Table) Head() (Handle, bool) {
	t.mux.Lock()
	defer t.mux.Unlock()
	if t.head == none {
		return Handle{}, false
	}
	return t.slots[t.head].task.handle, true
}

// Next returns the queue successor of a queued task.
func (t *Table) Next(h Handle) (Handle, bool) {
	t.mux.Lock()
	defer t.mux.Unlock()
	task := t.resolve(h)
	if task == nil || !task.queued {
		return Handle{}, false
	}
	return t.slots[task.next].task.handle, true
}

// Len returns the run queue length.
func (t *Table) Len() int {
	t.mux.Lock()
	defer t.mux.Unlock()
	return t.count
}

// Contains reports whether the task is on the run queue.
func (t *Table) Contains(h Handle) bool {
	t.mux.Lock()
	defer t.mux.Unlock()
	task := t.resolve(h)
	return task != nil && task.queued
}

// FindByID looks a queued task up by id, scanning one revolution from the
// head.
func (t *Table) FindByID(id ID) (Handle, bool) {
	t.mux.Lock()
	defer t.mux.Unlock()
	if t.head == none || id <= 0 {
		return Handle{}, false
	}
	i := t.head
	for {
		task := t.slots[i].task
		if task.ID == id {
			return task.handle, true
		}
		if i = task.next; i == t.head {
			return Handle{}, false
		}
	}
}

// Lookup finds any live task by id, queued or not.
func (t *Table) Lookup(id ID) (Handle, bool) {
	t.mux.Lock()
	defer t.mux.Unlock()
	for _, s := range t.slots {
		if s.task != nil && s.task.ID == id {
			return s.task.handle, true
		}
	}
	return Handle{}, false
}

// Release frees the stack and control block of a task that is no longer
// queued and retires its slot. Every handle to the task goes stale.
func (t *Table) Release(h Handle) error {
	t.mux.Lock()
	task := t.resolve(h)
	if task == nil {
		t.mux.Unlock()
		return fmt.Errorf("%w: %v", ErrStale, h)
	}
	if task.queued {
		t.mux.Unlock()
		return fmt.Errorf("%w: %v", ErrQueued, task)
	}
	t.slots[h.slot].task = nil
	t.slots[h.slot].gen++
	t.vacant = append(t.vacant, h.slot)
	t.mux.Unlock()

	var errs []error
	if err := t.heap.Free(task.Stack); err != nil {
		errs = append(errs, fmt.Errorf("failed to free stack of %v: %w", task, err))
	}
	if err := t.heap.Free(task.Control); err != nil {
		errs = append(errs, fmt.Errorf("failed to free control block of %v: %w", task, err))
	}
	return errors.Join(errs...)
}

// Each visits every live task in slot order until fn returns false.
func (t *Table) Each(fn func(task *Task) bool) {
	t.mux.Lock()
	tasks := make([]*Task, 0, len(t.slots))
	for _, s := range t.slots {
		if s.task != nil {
			tasks = append(tasks, s.task)
		}
	}
	t.mux.Unlock()
	for _, task := range tasks {
		if !fn(task) {
			return
		}
	}
}

// Queue returns the queued tasks in order starting at the head.
func (t *Table) Queue() []*Task {
	t.mux.Lock()
	defer t.mux.Unlock()
	var ret []*Task
	if t.head == none {
		return ret
	}
	for i := t.head; ; {
		task := t.slots[i].task
		ret = append(ret, task)
		if i = task.next; i == t.head {
			return ret
		}
	}
}

// Verify checks that the run queue is a consistent cycle of Len tasks.
func (t *Table) Verify() error {
	t.mux.Lock()
	defer t.mux.Unlock()
	queued := 0
	for _, s := range t.slots {
		if s.task != nil && s.task.queued {
			queued++
		}
	}
	if queued != t.count {
		return fmt.Errorf("%w: %d tasks flagged queued, count is %d", ErrCorrupt, queued, t.count)
	}
	if t.head == none {
		if t.count != 0 {
			return fmt.Errorf("%w: empty queue with count %d", ErrCorrupt, t.count)
		}
		return nil
	}
	i := t.head
	for n := 0; n < t.count; n++ {
		task := t.slots[i].task
		if task == nil || !task.queued {
			return fmt.Errorf("%w: slot %d linked but not queued", ErrCorrupt, i)
		}
		if t.slots[task.next].task.prev != i {
			return fmt.Errorf("%w: broken back link at slot %d", ErrCorrupt, task.next)
		}
		i = task.next
	}
	if i != t.head {
		return fmt.Errorf("%w: cycle does not close after %d tasks", ErrCorrupt, t.count)
	}
	return nil
}

func (t *Table) place(task *Task) Handle {
	var idx int32
	if n := len(t.vacant); n > 0 {
		idx = t.vacant[n-1]
		t.vacant = t.vacant[:n-1]
	} else {
		idx = int32(len(t.slots))
		t.slots = append(t.slots, slot{})
	}
	s := &t.slots[idx]
	s.gen++
	s.task = task
	return Handle{slot: idx, gen: s.gen}
}

func (t *Table) insertHead(task *Task) {
	idx := task.handle.slot
	if t.head == none {
		task.next, task.prev = idx, idx
	} else {
		head := t.slots[t.head].task
		task.next = t.head
		task.prev = head.prev
		t.slots[head.prev].task.next = idx
		head.prev = idx
	}
	t.head = idx
	task.queued = true
	t.count++
}

func (t *Table) resolve(h Handle) *Task {
	if h.IsZero() || h.slot < 0 || int(h.slot) >= len(t.slots) {
		return nil
	}
	s := t.slots[h.slot]
	if s.gen != h.gen {
		return nil
	}
	return s.task
}
