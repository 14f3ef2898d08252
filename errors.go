package valen

import "errors"

var (
	// ErrNotBooted is returned by operations that need a booted kernel.
	ErrNotBooted = errors.New("valen: kernel not booted")
	// ErrBooted is returned by a second Boot.
	ErrBooted = errors.New("valen: kernel already booted")
	// ErrRunning is returned by Run while the kernel is running.
	ErrRunning = errors.New("valen: kernel already running")
	// ErrHalted is returned by operations that change state after a halt.
	ErrHalted = errors.New("valen: kernel halted")
	// ErrIdle is the halt reason recorded once no task is left to run.
	ErrIdle = errors.New("valen: no runnable task")
)
