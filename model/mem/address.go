package mem

import "fmt"

const (
	// PageShift is log2(PageSize).
	PageShift = 12
	// PageSize is the size of a frame and of a page.
	PageSize = 1 << PageShift
	// HugePageSize is the size of a PD-level leaf.
	HugePageSize = 2 << 20
	// GiantPageSize is the size of a PDPT-level leaf.
	GiantPageSize = 1 << 30

	// ReservedLow is the default frame reservation threshold: frames below it
	// hold the kernel image, bootstrap data and the boot page tables.
	ReservedLow PhysAddr = 0x200000

	// KernelVirtOffset is the base of the higher-half kernel mapping.
	KernelVirtOffset VirtAddr = 0xFFFFFFFF80000000
)

// PhysAddr is a physical memory address.
type PhysAddr uint64

// VirtAddr is a virtual memory address.
type VirtAddr uint64

// Frame returns the frame number containing the address.
func (a PhysAddr) Frame() uint64 { return uint64(a) >> PageShift }

// Aligned reports whether the address sits on a page boundary.
func (a PhysAddr) Aligned() bool { return uint64(a)&(PageSize-1) == 0 }

func (a PhysAddr) String() string { return fmt.Sprintf("%#x", uint64(a)) }

// FrameAddr returns the address of frame n.
func FrameAddr(n uint64) PhysAddr { return PhysAddr(n << PageShift) }

// Page returns the page number containing the address.
func (a VirtAddr) Page() uint64 { return uint64(a) >> PageShift }

// Aligned reports whether the address sits on a page boundary.
func (a VirtAddr) Aligned() bool { return uint64(a)&(PageSize-1) == 0 }

// Offset returns the byte offset within the page.
func (a VirtAddr) Offset() uint64 { return uint64(a) & (PageSize - 1) }

func (a VirtAddr) String() string { return fmt.Sprintf("%#x", uint64(a)) }

// PagesFor returns the number of pages needed to cover size bytes.
func PagesFor(size uint64) uint64 {
	return (size + PageSize - 1) >> PageShift
}

// AlignUp rounds v up to a multiple of align (power of two).
func AlignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

// AlignDown rounds v down to a multiple of align (power of two).
func AlignDown(v, align uint64) uint64 {
	return v &^ (align - 1)
}
