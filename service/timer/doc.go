// Package timer models the programmable interval timer that drives
// preemption: the divisor programming of channel 0 and a periodic source
// that raises the timer interrupt line.
package timer
