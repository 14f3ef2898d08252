// Package task holds the task control blocks and the run queue.
//
// Tasks live in an arena of slots. A Handle names a slot together with the
// generation it was issued for, so a handle kept after its task has been
// released stops resolving instead of aliasing the slot's next occupant.
// The run queue is a circular doubly-linked list threaded through the slots
// by index.
package task
