package task

import (
	"fmt"
	"unicode/utf8"

	"github.com/viant/valen/model/mem"
	"github.com/viant/valen/runtime/cpu"
)

const (
	// NameLimit is the longest task name kept, in bytes.
	NameLimit = 15
	// DefaultName is used when a task is created without a name.
	DefaultName = "unknown"
	// DefaultStackSize is the kernel stack size of a task.
	DefaultStackSize = 3072
	// DefaultControlSize is the heap footprint of a task control block.
	DefaultControlSize = 288
	// StackAlignment is the alignment of the initial stack pointer.
	StackAlignment = 16
)

// ID identifies a task for its whole life. IDs start at 1 and are never
// reused.
type ID int64

// Handle names a task slot at a given generation. The zero Handle names
// nothing.
type Handle struct {
	slot int32
	gen  uint32
}

// IsZero reports whether h names nothing.
func (h Handle) IsZero() bool { return h.gen == 0 }

func (h Handle) String() string {
	if h.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%d.%d", h.slot, h.gen)
}

// Task is a task control block.
type Task struct {
	ID        ID
	Name      string
	State     State
	ExitCode  int
	Parent    Handle
	Stack     mem.VirtAddr
	StackSize uint64
	Control   mem.VirtAddr
	Context   *cpu.Context
	Entry     func()

	handle Handle
	next   int32
	prev   int32
	queued bool
}

// Handle returns the handle the task was created under.
func (t *Task) Handle() Handle { return t.handle }

// Queued reports whether the task is on the run queue.
func (t *Task) Queued() bool { return t.queued }

// StackTop returns the initial stack pointer.
func (t *Task) StackTop() mem.VirtAddr {
	return mem.VirtAddr(mem.AlignDown(uint64(t.Stack)+t.StackSize, StackAlignment))
}

func (t *Task) String() string {
	return fmt.Sprintf("%s[%d]", t.Name, t.ID)
}

func truncateName(name string) string {
	if name == "" {
		return DefaultName
	}
	if len(name) <= NameLimit {
		return name
	}
	cut := NameLimit
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}
