// Package frame owns the physical frame bitmap. It is the only component
// allowed to hand out physical frames; every other layer (page tables, kernel
// heap, task stacks) obtains its backing memory through Allocate and gives it
// back through Free.
package frame
