package paging

import (
	"log/slog"

	"github.com/viant/valen/model/mem"
)

// Option customises a Mapper.
type Option func(m *Mapper)

// WithRoot adopts an existing PML4 instead of allocating a fresh one.
func WithRoot(root mem.PhysAddr) Option {
	return func(m *Mapper) {
		m.root = root
		m.adopted = root != 0
	}
}

// WithKernelSize sets the size of the higher-half kernel image mapping. It is
// rounded up to 2MiB.
func WithKernelSize(size uint64) Option {
	return func(m *Mapper) {
		m.kernelSize = size
	}
}

// WithAllocBase sets the first virtual address handed out by Alloc.
func WithAllocBase(base mem.VirtAddr) Option {
	return func(m *Mapper) {
		m.allocBase = base
	}
}

// WithLogger sets the mapper logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mapper) {
		if logger != nil {
			m.logger = logger
		}
	}
}
