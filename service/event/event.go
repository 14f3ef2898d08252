package event

import (
	"fmt"
	"time"

	"github.com/viant/valen/internal/clock"
)

// Kind classifies a kernel event.
type Kind string

const (
	KindBooted          Kind = "kernel.booted"
	KindHalted          Kind = "kernel.halted"
	KindTaskCreated     Kind = "task.created"
	KindTaskExited      Kind = "task.exited"
	KindTaskKilled      Kind = "task.killed"
	KindTaskReaped      Kind = "task.reaped"
	KindPageFault       Kind = "page.fault"
	KindMemoryExhausted Kind = "memory.exhausted"
)

// Context identifies where an event comes from.
type Context struct {
	BootID string `json:"bootID,omitempty"`
	Kind   Kind   `json:"kind"`
	TaskID int64  `json:"taskID,omitempty"`
}

// Event is a kernel event carrying a payload of type T.
type Event[T any] struct {
	Context   *Context  `json:"context"`
	CreatedAt time.Time `json:"createdAt"`
	Data      T         `json:"data"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent[T any](context *Context, data T) *Event[T] {
	return &Event[T]{Context: context, CreatedAt: clock.Now(), Data: data}
}

func (e *Event[T]) String() string {
	kind := Kind("?")
	if e.Context != nil {
		kind = e.Context.Kind
	}
	return fmt.Sprintf("%s %s %v", e.CreatedAt.Format("15:04:05.000"), kind, e.Data)
}

// Task is the payload of task lifecycle events.
type Task struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	State    string `json:"state"`
	ExitCode int    `json:"exitCode"`
	Parent   string `json:"parent,omitempty"`
}

func (t Task) String() string {
	return fmt.Sprintf("pid=%d name=%s state=%s code=%d", t.ID, t.Name, t.State, t.ExitCode)
}

// Fault is the payload of page-fault events.
type Fault struct {
	Addr  uint64 `json:"addr"`
	Code  uint64 `json:"code"`
	Cause string `json:"cause"`
}

func (f Fault) String() string {
	return fmt.Sprintf("addr=%#x code=%d %s", f.Addr, f.Code, f.Cause)
}

// Memory is the payload of frame allocator events.
type Memory struct {
	TotalPages uint64 `json:"totalPages"`
	UsedPages  uint64 `json:"usedPages"`
}

func (m Memory) String() string {
	return fmt.Sprintf("used=%d/%d pages", m.UsedPages, m.TotalPages)
}

// Kernel is the payload of boot and halt events.
type Kernel struct {
	Message string `json:"message"`
}

func (k Kernel) String() string { return k.Message }
