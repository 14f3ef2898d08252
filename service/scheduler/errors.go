package scheduler

import "errors"

var (
	// ErrInvalidID is returned by Kill for ids that can never name a task.
	ErrInvalidID = errors.New("scheduler: invalid task id")
	// ErrNotFound is returned by Kill when no queued task has the id.
	ErrNotFound = errors.New("scheduler: task not found")
	// ErrKillCurrent is returned by Kill for the running task.
	ErrKillCurrent = errors.New("scheduler: cannot kill the current task")
)
