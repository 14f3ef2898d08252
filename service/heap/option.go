package heap

import (
	"log/slog"

	"github.com/viant/valen/model/mem"
)

// Option customises a Heap.
type Option func(h *Heap)

// WithBase sets the first virtual address of the heap window.
func WithBase(base mem.VirtAddr) Option {
	return func(h *Heap) {
		h.base = base
	}
}

// WithMaxSize caps the heap window in bytes.
func WithMaxSize(size uint64) Option {
	return func(h *Heap) {
		h.maxSize = size
	}
}

// WithGrowPages sets the minimum number of pages mapped per growth step.
func WithGrowPages(pages int) Option {
	return func(h *Heap) {
		if pages > 0 {
			h.growPages = pages
		}
	}
}

// WithLogger sets the heap logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Heap) {
		if logger != nil {
			h.logger = logger
		}
	}
}
