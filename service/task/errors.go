package task

import "errors"

var (
	// ErrOutOfMemory is returned when the heap cannot hold a new task.
	ErrOutOfMemory = errors.New("task: out of memory")
	// ErrStale is returned for a handle whose task has been released.
	ErrStale = errors.New("task: stale handle")
	// ErrQueued is returned when releasing a task still on the run queue.
	ErrQueued = errors.New("task: task is queued")
	// ErrNotQueued is returned when removing a task that is not queued.
	ErrNotQueued = errors.New("task: task is not queued")
	// ErrCorrupt is returned by Verify when the run queue is inconsistent.
	ErrCorrupt = errors.New("task: run queue corrupt")
)
