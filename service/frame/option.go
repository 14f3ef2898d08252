package frame

import (
	"log/slog"
	"sync"

	"github.com/viant/valen/model/mem"
)

// Option customises an Allocator.
type Option func(a *Allocator)

// WithReservedBelow sets the threshold under which Allocate never hands out
// frames. Frames below it may still be marked free or used explicitly.
func WithReservedBelow(addr mem.PhysAddr) Option {
	return func(a *Allocator) {
		a.reservedBelow = addr
	}
}

// WithLocker replaces the default spin lock.
func WithLocker(locker sync.Locker) Option {
	return func(a *Allocator) {
		if locker != nil {
			a.lock = locker
		}
	}
}

// WithLogger sets the logger used for exhaustion diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Allocator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithExhaustedListener registers a callback invoked (outside the lock)
// every time Allocate finds no free frame.
func WithExhaustedListener(fn func()) Option {
	return func(a *Allocator) {
		a.onExhausted = fn
	}
}
