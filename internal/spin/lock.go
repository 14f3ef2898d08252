// Package spin provides the non-reentrant spin lock guarding kernel state
// that is reachable from both the main flow and interrupt context.
package spin

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Lock is a test-and-set spin lock. The zero value is unlocked.
// Acquiring a lock already held by the caller deadlocks.
type Lock struct {
	held atomic.Bool
}

// Lock spins until the lock is acquired.
func (l *Lock) Lock() {
	for !l.held.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

// TryLock acquires the lock without spinning.
func (l *Lock) TryLock() bool {
	return l.held.CompareAndSwap(false, true)
}

// Unlock releases the lock. Unlocking an unlocked lock panics.
func (l *Lock) Unlock() {
	if !l.held.Swap(false) {
		panic("spin: unlock of unlocked lock")
	}
}

// Held reports whether the lock is currently taken.
func (l *Lock) Held() bool { return l.held.Load() }

var _ sync.Locker = (*Lock)(nil)
