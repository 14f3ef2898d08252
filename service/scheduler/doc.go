// Package scheduler implements fixed-quota round-robin scheduling over the
// task run queue, together with task termination and deferred reclamation.
//
// The scheduler never blocks and never holds its lock across a context
// switch: the next task is chosen under the lock and the hand-off happens
// after it is released.
package scheduler
