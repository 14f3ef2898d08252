package scheduler

import (
	"log/slog"

	"github.com/viant/valen/service/stats"
)

// Option customises a Scheduler.
type Option func(s *Scheduler)

// WithQuota sets the number of ticks a task runs before preemption.
func WithQuota(ticks int) Option {
	return func(s *Scheduler) {
		if ticks > 0 {
			s.quota = ticks
		}
	}
}

// WithIdle sets the function run when the last runnable task exits.
func WithIdle(fn func()) Option {
	return func(s *Scheduler) {
		s.idle = fn
	}
}

// WithHooks sets the task lifecycle observers.
func WithHooks(hooks Hooks) Option {
	return func(s *Scheduler) {
		s.hooks = hooks
	}
}

// WithStats sets the counters updated on every switch, tick and lifecycle
// transition.
func WithStats(counters *stats.Counters) Option {
	return func(s *Scheduler) {
		s.counters = counters
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}
