// Package model contains the in-memory representation of the values that
// cross component boundaries inside the kernel: physical and virtual
// addresses, page geometry and the boot memory map.
//
// The concrete types live in sub-packages (for example `mem`) so that
// low-level services can import them without pulling in the kernel facade.
package model
