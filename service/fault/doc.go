// Package fault is the fatal page-fault path: it reports the faulting
// address and the decoded error code, then halts the processor for good.
package fault
