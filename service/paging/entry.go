package paging

import (
	"strings"

	"github.com/viant/valen/model/mem"
)

// Flags is the set of attribute bits carried by a page-table entry.
type Flags uint64

const (
	Present      Flags = 1 << 0
	Writable     Flags = 1 << 1
	User         Flags = 1 << 2
	WriteThrough Flags = 1 << 3
	CacheDisable Flags = 1 << 4
	Accessed     Flags = 1 << 5
	Dirty        Flags = 1 << 6
	Huge         Flags = 1 << 7
	Global       Flags = 1 << 8

	flagMask = Flags(0xFFF)
)

// Has reports whether all bits of other are set.
func (f Flags) Has(other Flags) bool { return f&other == other }

func (f Flags) String() string {
	names := []struct {
		flag Flags
		name string
	}{
		{Present, "P"}, {Writable, "W"}, {User, "U"}, {WriteThrough, "PWT"},
		{CacheDisable, "PCD"}, {Accessed, "A"}, {Dirty, "D"}, {Huge, "PS"}, {Global, "G"},
	}
	var parts []string
	for _, n := range names {
		if f.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "|")
}

const (
	levels       = 4
	entriesShift = 9
	entryCount   = 1 << entriesShift
	addrMask     = uint64(0x000FFFFFFFFFF000)
)

// entry is a raw page-table entry: a frame address plus flag bits.
type entry uint64

func newEntry(addr mem.PhysAddr, flags Flags) entry {
	return entry(uint64(addr)&addrMask | uint64(flags&flagMask))
}

func (e entry) flags() Flags { return Flags(e) & flagMask }

func (e entry) has(flags Flags) bool { return e.flags().Has(flags) }

func (e entry) addr() mem.PhysAddr { return mem.PhysAddr(uint64(e) & addrMask) }

// index returns the table index used at level (0 = PML4) for virt.
func index(level int, virt mem.VirtAddr) uint64 {
	shift := mem.PageShift + entriesShift*(levels-1-level)
	return (uint64(virt) >> shift) & (entryCount - 1)
}

// span returns the number of bytes covered by one entry at level.
func span(level int) uint64 {
	return 1 << (mem.PageShift + entriesShift*(levels-1-level))
}

// canonical sign-extends bit 47.
func canonical(v uint64) mem.VirtAddr {
	if v&(1<<47) != 0 {
		v |= 0xFFFF000000000000
	}
	return mem.VirtAddr(v)
}
