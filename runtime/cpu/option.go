package cpu

import "log/slog"

// Option customises a CPU.
type Option func(c *CPU)

// WithReturnHook sets the function run on a context's goroutine when its
// entry function returns.
func WithReturnHook(fn func(ctx *Context)) Option {
	return func(c *CPU) {
		c.onReturn = fn
	}
}

// WithLogger sets the processor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *CPU) {
		if logger != nil {
			c.logger = logger
		}
	}
}
