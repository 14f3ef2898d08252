package cpu

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

const (
	// KernelCodeSelector is the code segment every task starts in.
	KernelCodeSelector = 0x08
	// KernelDataSelector is the stack segment every task starts with.
	KernelDataSelector = 0x10
	// FlagsInterruptsEnabled is the initial flags word: IF plus the reserved bit.
	FlagsInterruptsEnabled = 0x202
)

// Registers is the saved register record of a task, in the order the
// interrupt entry code pushes it.
type Registers struct {
	R15, R14, R13, R12, R11, R10, R9, R8 uint64
	RBP, RBX, RAX, RCX, RDX, RSI, RDI    uint64
	OrigRAX                              uint64
	RIP, CS, RFlags, RSP, SS             uint64
}

var contextSeq atomic.Uint64

// Context is a saved execution context. Its zero value is not usable; use
// NewContext.
type Context struct {
	Registers
	ID uint64

	entry    func()
	started  bool
	resume   chan struct{}
	kill     chan struct{}
	killOnce sync.Once
}

// NewContext prepares a context that starts executing entry on the stack
// whose top is stackTop.
func NewContext(entry func(), stackTop uint64) *Context {
	ret := &Context{
		ID:     contextSeq.Add(1),
		entry:  entry,
		resume: make(chan struct{}, 1),
		kill:   make(chan struct{}),
	}
	ret.RSP = stackTop
	ret.CS = KernelCodeSelector
	ret.SS = KernelDataSelector
	ret.RFlags = FlagsInterruptsEnabled
	if entry != nil {
		ret.RIP = uint64(reflect.ValueOf(entry).Pointer())
	}
	return ret
}

// Started reports whether the context has ever been resumed.
func (c *Context) Started() bool { return c.started }

func (c *Context) String() string {
	return fmt.Sprintf("ctx#%d(rip=%#x rsp=%#x)", c.ID, c.RIP, c.RSP)
}

func (c *Context) release() {
	c.killOnce.Do(func() { close(c.kill) })
}
