package task

import "log/slog"

// Option customises a Table.
type Option func(t *Table)

// WithStackSize sets the kernel stack size of new tasks.
func WithStackSize(size uint64) Option {
	return func(t *Table) {
		if size > 0 {
			t.stackSize = size
		}
	}
}

// WithControlSize sets the heap footprint of a task control block.
func WithControlSize(size uint64) Option {
	return func(t *Table) {
		if size > 0 {
			t.controlSize = size
		}
	}
}

// WithLogger sets the table logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Table) {
		if logger != nil {
			t.logger = logger
		}
	}
}
