package frame

import (
	"fmt"
	"log/slog"
	"math/bits"
	"sync"

	"github.com/viant/valen/internal/spin"
	"github.com/viant/valen/model/mem"
)

// Stats is a point-in-time view of the allocator counters.
type Stats struct {
	TotalPages uint64 `json:"totalPages"`
	UsedPages  uint64 `json:"usedPages"`
	FreePages  uint64 `json:"freePages"`
}

// TotalKB returns the tracked memory in KiB.
func (s Stats) TotalKB() uint64 { return s.TotalPages * mem.PageSize / 1024 }

// UsedKB returns the used memory in KiB.
func (s Stats) UsedKB() uint64 { return s.UsedPages * mem.PageSize / 1024 }

// FreeKB returns the free memory in KiB.
func (s Stats) FreeKB() uint64 { return s.FreePages * mem.PageSize / 1024 }

// Allocator is a first-fit bitmap frame allocator. A set bit marks a used
// frame. All methods acquire the allocator lock; none of them may be called
// while the caller already holds it.
type Allocator struct {
	lock          sync.Locker
	bitmapAddr    mem.VirtAddr
	bitmap        []byte
	totalPages    uint64
	usedPages     uint64
	reservedBelow mem.PhysAddr
	logger        *slog.Logger
	onExhausted   func()
}

// New initialises the allocator for totalBytes of physical memory with its
// bitmap placed at bitmapAddr. Every frame starts out used; callers release
// the usable regions with MarkFree or MarkRegions.
func New(bitmapAddr mem.VirtAddr, totalBytes uint64, options ...Option) *Allocator {
	a := &Allocator{
		lock:          &spin.Lock{},
		bitmapAddr:    bitmapAddr,
		reservedBelow: mem.ReservedLow,
		logger:        slog.Default(),
	}
	for _, opt := range options {
		opt(a)
	}
	a.totalPages = totalBytes / mem.PageSize
	a.bitmap = make([]byte, (a.totalPages+7)/8)
	for i := range a.bitmap {
		a.bitmap[i] = 0xFF
	}
	a.usedPages = a.totalPages
	return a
}

// BitmapAddr returns the virtual address the bitmap was placed at.
func (a *Allocator) BitmapAddr() mem.VirtAddr { return a.bitmapAddr }

// BitmapSize returns the bitmap length in bytes.
func (a *Allocator) BitmapSize() int { return len(a.bitmap) }

// MarkFree releases the frame containing addr. Addresses outside the
// tracked range are ignored.
func (a *Allocator) MarkFree(addr mem.PhysAddr) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.clear(addr.Frame())
}

// MarkUsed reserves the frame containing addr. Addresses outside the tracked
// range are ignored.
func (a *Allocator) MarkUsed(addr mem.PhysAddr) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.set(addr.Frame())
}

// MarkRegions frees every frame fully contained in an available region of
// the boot memory map and returns how many frames were released.
func (a *Allocator) MarkRegions(regions []mem.Region) uint64 {
	var released uint64
	for _, region := range regions {
		if region.Type != mem.RegionAvailable {
			continue
		}
		region.Frames(func(addr mem.PhysAddr) {
			a.lock.Lock()
			if a.clear(addr.Frame()) {
				released++
			}
			a.lock.Unlock()
		})
	}
	return released
}

// Allocate returns the lowest free frame at or above the reservation
// threshold, or false when memory is exhausted.
func (a *Allocator) Allocate() (mem.PhysAddr, bool) {
	a.lock.Lock()
	for i, b := range a.bitmap {
		if b == 0xFF {
			continue
		}
		for j := 0; j < 8; j++ {
			if b&(1<<j) != 0 {
				continue
			}
			n := uint64(i)*8 + uint64(j)
			if n >= a.totalPages {
				break
			}
			addr := mem.FrameAddr(n)
			if addr < a.reservedBelow {
				continue
			}
			a.bitmap[i] |= 1 << j
			a.usedPages++
			a.lock.Unlock()
			return addr, true
		}
	}
	a.lock.Unlock()
	a.logger.Warn("physical memory exhausted", "totalPages", a.totalPages)
	if a.onExhausted != nil {
		a.onExhausted()
	}
	return 0, false
}

// Free releases a frame previously returned by Allocate.
func (a *Allocator) Free(addr mem.PhysAddr) {
	a.MarkFree(addr)
}

// IsUsed reports whether the frame containing addr is marked used. Frames
// outside the tracked range report true.
func (a *Allocator) IsUsed(addr mem.PhysAddr) bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	n := addr.Frame()
	if n >= a.totalPages {
		return true
	}
	return a.bitmap[n/8]&(1<<(n%8)) != 0
}

// TotalPages returns the number of tracked frames.
func (a *Allocator) TotalPages() uint64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.totalPages
}

// UsedPages returns the number of used frames.
func (a *Allocator) UsedPages() uint64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.usedPages
}

// FreePages returns the number of free frames.
func (a *Allocator) FreePages() uint64 {
	return a.Stats().FreePages
}

// Stats returns all counters under one lock acquisition.
func (a *Allocator) Stats() Stats {
	a.lock.Lock()
	defer a.lock.Unlock()
	ret := Stats{TotalPages: a.totalPages, UsedPages: a.usedPages}
	if a.totalPages > a.usedPages {
		ret.FreePages = a.totalPages - a.usedPages
	}
	return ret
}

// Snapshot returns a copy of the bitmap.
func (a *Allocator) Snapshot() []byte {
	a.lock.Lock()
	defer a.lock.Unlock()
	return append([]byte(nil), a.bitmap...)
}

// Verify checks that the used counter matches the bitmap population.
func (a *Allocator) Verify() error {
	a.lock.Lock()
	defer a.lock.Unlock()
	var set uint64
	for i, b := range a.bitmap {
		if i == len(a.bitmap)-1 && a.totalPages%8 != 0 {
			b &= byte(1<<(a.totalPages%8)) - 1
		}
		set += uint64(bits.OnesCount8(b))
	}
	if set != a.usedPages {
		return fmt.Errorf("frame: used counter %d does not match %d set bits", a.usedPages, set)
	}
	if a.usedPages > a.totalPages {
		return fmt.Errorf("frame: used pages %d exceed total %d", a.usedPages, a.totalPages)
	}
	return nil
}

// set marks frame n used; the lock must be held.
func (a *Allocator) set(n uint64) bool {
	if n >= a.totalPages {
		return false
	}
	mask := byte(1 << (n % 8))
	if a.bitmap[n/8]&mask != 0 {
		return false
	}
	a.bitmap[n/8] |= mask
	a.usedPages++
	return true
}

// clear marks frame n free; the lock must be held.
func (a *Allocator) clear(n uint64) bool {
	if n >= a.totalPages {
		return false
	}
	mask := byte(1 << (n % 8))
	if a.bitmap[n/8]&mask == 0 {
		return false
	}
	a.bitmap[n/8] &^= mask
	if a.usedPages > 0 {
		a.usedPages--
	}
	return true
}
