// Package cpu models the single logical processor the kernel runs on.
//
// Each saved execution context owns a goroutine. A baton guarantees that
// exactly one of them runs at a time: Switch hands the baton to the next
// context and parks the caller until it is chosen again, which gives the
// same observable contract as a register save/restore on a real core.
// The timer interrupt line is an atomic counter drained by the running
// context at its preemption points.
package cpu
