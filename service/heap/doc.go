// Package heap implements the kernel heap: variable sized blocks carved out
// of a virtual window that is backed page by page through the address-space
// mapper as it grows.
//
// Allocation is first fit over an address-ordered free list; freed blocks
// are coalesced with their neighbours. Every block is 16-byte aligned.
package heap
