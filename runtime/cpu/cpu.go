package cpu

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrHalted is the halt reason recorded when Halt is called with nil.
var ErrHalted = errors.New("cpu: halted")

// Switcher is the context-switch primitive the scheduler drives.
type Switcher interface {
	// Switch saves the caller into prev and resumes next. It returns only
	// when prev is resumed again.
	Switch(prev, next *Context)
	// Jump resumes next without saving the caller.
	Jump(next *Context)
	// Release discards a context that will never be resumed.
	Release(ctx *Context)
}

// CPU is a single logical processor.
type CPU struct {
	onReturn func(ctx *Context)
	logger   *slog.Logger

	masked   atomic.Bool
	irqs     atomic.Uint64
	switches atomic.Uint64

	haltOnce sync.Once
	halted   chan struct{}
	mux      sync.Mutex
	err      error
}

var _ Switcher = (*CPU)(nil)

// New creates a processor with interrupts enabled.
func New(options ...Option) *CPU {
	ret := &CPU{
		halted: make(chan struct{}),
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Switch hands the processor from prev to next. Interrupts stay masked
// until prev runs again.
func (c *CPU) Switch(prev, next *Context) {
	if prev == next {
		return
	}
	c.DisableInterrupts()
	c.switches.Add(1)
	c.resume(next)
	if prev == nil {
		return
	}
	c.wait(prev)
	c.EnableInterrupts()
}

// Jump resumes next; the caller is not saved and keeps running on its own
// goroutine, outside the kernel.
func (c *CPU) Jump(next *Context) {
	c.DisableInterrupts()
	c.switches.Add(1)
	c.resume(next)
}

// Release makes the goroutine parked in ctx exit.
func (c *CPU) Release(ctx *Context) {
	if ctx != nil {
		ctx.release()
	}
}

// Park blocks the calling context until it is released or the processor
// halts, then terminates the calling goroutine. It never returns.
func (c *CPU) Park(ctx *Context) {
	if ctx == nil {
		<-c.halted
		runtime.Goexit()
	}
	select {
	case <-ctx.kill:
	case <-c.halted:
	}
	runtime.Goexit()
}

// Halt stops the processor permanently. The first reason wins.
func (c *CPU) Halt(reason error) {
	if reason == nil {
		reason = ErrHalted
	}
	c.haltOnce.Do(func() {
		c.mux.Lock()
		c.err = reason
		c.mux.Unlock()
		c.DisableInterrupts()
		close(c.halted)
		c.logger.Info("cpu halted", "reason", reason)
	})
}

// Done is closed once the processor halts.
func (c *CPU) Done() <-chan struct{} { return c.halted }

// Halted reports whether the processor has halted.
func (c *CPU) Halted() bool {
	select {
	case <-c.halted:
		return true
	default:
		return false
	}
}

// Err returns the halt reason, or nil while running.
func (c *CPU) Err() error {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.err
}

// Wait blocks until the processor halts or ctx is done.
func (c *CPU) Wait(ctx context.Context) error {
	select {
	case <-c.halted:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RaiseIRQ records a pending timer interrupt. It is safe to call from any
// goroutine.
func (c *CPU) RaiseIRQ() {
	c.irqs.Add(1)
}

// PendingIRQs returns the number of undelivered interrupts.
func (c *CPU) PendingIRQs() uint64 { return c.irqs.Load() }

// TakeIRQs claims all pending interrupts. Nothing is delivered while
// interrupts are masked.
func (c *CPU) TakeIRQs() uint64 {
	if c.masked.Load() {
		return 0
	}
	return c.irqs.Swap(0)
}

// DisableInterrupts masks interrupt delivery.
func (c *CPU) DisableInterrupts() { c.masked.Store(true) }

// EnableInterrupts unmasks interrupt delivery.
func (c *CPU) EnableInterrupts() {
	if c.Halted() {
		return
	}
	c.masked.Store(false)
}

// InterruptsEnabled reports whether interrupts are delivered.
func (c *CPU) InterruptsEnabled() bool { return !c.masked.Load() }

// Switches returns the number of hand-offs performed.
func (c *CPU) Switches() uint64 { return c.switches.Load() }

func (c *CPU) resume(next *Context) {
	if next == nil {
		return
	}
	if next.started {
		next.resume <- struct{}{}
		return
	}
	next.started = true
	go c.run(next)
}

func (c *CPU) run(ctx *Context) {
	select {
	case <-ctx.kill:
		return
	case <-c.halted:
		return
	default:
	}
	c.EnableInterrupts()
	if ctx.entry != nil {
		ctx.entry()
	}
	if c.onReturn != nil {
		c.onReturn(ctx)
	}
	c.logger.Debug("context returned without handing off", "context", ctx.String())
	c.Park(ctx)
}

func (c *CPU) wait(ctx *Context) {
	select {
	case <-ctx.resume:
	case <-ctx.kill:
		runtime.Goexit()
	case <-c.halted:
		runtime.Goexit()
	}
}
