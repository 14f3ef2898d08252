package heap

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/viant/valen/model/mem"
	"github.com/viant/valen/service/paging"
)

const (
	// Alignment is the alignment of every block handed out.
	Alignment = 16
	// DefaultBase is the default start of the heap window.
	DefaultBase mem.VirtAddr = 0xFFFFFFFFC0000000
	// DefaultMaxSize is the default size cap of the heap window.
	DefaultMaxSize = 4 << 20
	// DefaultGrowPages is the default minimum growth step.
	DefaultGrowPages = 4
)

// Backer maps fresh frames at a fixed virtual address.
type Backer interface {
	AllocAt(virt mem.VirtAddr, pageCount int, flags paging.Flags) error
}

// Stats is a point-in-time view of the heap.
type Stats struct {
	Mapped      uint64 `json:"mapped"`
	InUse       uint64 `json:"inUse"`
	Free        uint64 `json:"free"`
	Allocations int    `json:"allocations"`
	FreeBlocks  int    `json:"freeBlocks"`
}

type block struct {
	addr mem.VirtAddr
	size uint64
}

func (b block) end() mem.VirtAddr { return b.addr + mem.VirtAddr(b.size) }

// Heap is a first-fit kernel heap.
type Heap struct {
	mux       sync.Mutex
	backer    Backer
	base      mem.VirtAddr
	top       mem.VirtAddr
	maxSize   uint64
	growPages int
	free      []block
	used      map[mem.VirtAddr]uint64
	inUse     uint64
	logger    *slog.Logger
}

// New creates an empty heap; no page is mapped until the first allocation.
func New(backer Backer, options ...Option) *Heap {
	h := &Heap{
		backer:    backer,
		base:      DefaultBase,
		maxSize:   DefaultMaxSize,
		growPages: DefaultGrowPages,
		used:      map[mem.VirtAddr]uint64{},
		logger:    slog.Default(),
	}
	for _, opt := range options {
		opt(h)
	}
	h.base = mem.VirtAddr(mem.AlignUp(uint64(h.base), mem.PageSize))
	if room := mem.AlignDown(math.MaxUint64-uint64(h.base), mem.PageSize); h.maxSize > room {
		h.maxSize = room
	}
	h.top = h.base
	return h
}

// Allocate returns a 16-byte aligned block of at least size bytes, or false
// when size is zero or the heap cannot grow any further.
func (h *Heap) Allocate(size uint64) (mem.VirtAddr, bool) {
	if size == 0 {
		return 0, false
	}
	size = mem.AlignUp(size, Alignment)
	h.mux.Lock()
	defer h.mux.Unlock()
	idx := h.fit(size)
	if idx < 0 {
		if err := h.grow(size); err != nil {
			h.logger.Warn("heap allocation failed", "size", size, "error", err)
			return 0, false
		}
		if idx = h.fit(size); idx < 0 {
			return 0, false
		}
	}
	candidate := h.free[idx]
	if candidate.size == size {
		h.free = append(h.free[:idx], h.free[idx+1:]...)
	} else {
		h.free[idx] = block{addr: candidate.addr + mem.VirtAddr(size), size: candidate.size - size}
	}
	h.used[candidate.addr] = size
	h.inUse += size
	return candidate.addr, true
}

// Free returns a block to the heap. Freeing the zero address is a no-op.
func (h *Heap) Free(addr mem.VirtAddr) error {
	if addr == 0 {
		return nil
	}
	h.mux.Lock()
	defer h.mux.Unlock()
	size, ok := h.used[addr]
	if !ok {
		if h.isFree(addr) {
			return fmt.Errorf("%w: %v", ErrDoubleFree, addr)
		}
		return fmt.Errorf("%w: %v", ErrUnknownPointer, addr)
	}
	delete(h.used, addr)
	h.inUse -= size
	h.insert(block{addr: addr, size: size})
	return nil
}

// Size returns the usable size of an allocated block.
func (h *Heap) Size(addr mem.VirtAddr) (uint64, bool) {
	h.mux.Lock()
	defer h.mux.Unlock()
	size, ok := h.used[addr]
	return size, ok
}

// Owns reports whether addr lies within the mapped heap window.
func (h *Heap) Owns(addr mem.VirtAddr) bool {
	h.mux.Lock()
	defer h.mux.Unlock()
	return addr >= h.base && addr < h.top
}

// Stats returns the heap counters.
func (h *Heap) Stats() Stats {
	h.mux.Lock()
	defer h.mux.Unlock()
	mapped := uint64(h.top - h.base)
	return Stats{
		Mapped:      mapped,
		InUse:       h.inUse,
		Free:        mapped - h.inUse,
		Allocations: len(h.used),
		FreeBlocks:  len(h.free),
	}
}

func (h *Heap) fit(size uint64) int {
	for i, candidate := range h.free {
		if candidate.size >= size {
			return i
		}
	}
	return -1
}

// grow maps enough pages at the top of the window for a block of size
// bytes, reusing a free block that already ends at the top.
func (h *Heap) grow(size uint64) error {
	need := size
	if n := len(h.free); n > 0 && h.free[n-1].end() == h.top {
		need -= h.free[n-1].size
	}
	pages := int(mem.PagesFor(need))
	if pages < h.growPages {
		pages = h.growPages
	}
	limit := h.base + mem.VirtAddr(h.maxSize)
	if room := int(uint64(limit-h.top) / mem.PageSize); pages > room {
		if uint64(room)*mem.PageSize < need {
			return fmt.Errorf("heap window exhausted: %d bytes left", uint64(limit-h.top))
		}
		pages = room
	}
	if err := h.backer.AllocAt(h.top, pages, paging.Writable); err != nil {
		return fmt.Errorf("failed to back %d heap pages at %v: %w", pages, h.top, err)
	}
	grown := block{addr: h.top, size: uint64(pages) * mem.PageSize}
	h.top = grown.end()
	h.insert(grown)
	h.logger.Debug("heap grown", "pages", pages, "top", h.top)
	return nil
}

// insert adds b to the address-ordered free list, merging it with adjacent
// blocks.
func (h *Heap) insert(b block) {
	i := sort.Search(len(h.free), func(i int) bool { return h.free[i].addr > b.addr })
	if i > 0 && h.free[i-1].end() == b.addr {
		h.free[i-1].size += b.size
		if i < len(h.free) && h.free[i-1].end() == h.free[i].addr {
			h.free[i-1].size += h.free[i].size
			h.free = append(h.free[:i], h.free[i+1:]...)
		}
		return
	}
	if i < len(h.free) && b.end() == h.free[i].addr {
		h.free[i] = block{addr: b.addr, size: b.size + h.free[i].size}
		return
	}
	h.free = append(h.free, block{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = b
}

func (h *Heap) isFree(addr mem.VirtAddr) bool {
	for _, candidate := range h.free {
		if addr >= candidate.addr && addr < candidate.end() {
			return true
		}
	}
	return false
}
