package mem

import (
	"fmt"
	"strings"
)

// RegionType classifies a boot memory map entry. Values follow the
// multiboot2 memory map tag.
type RegionType int

const (
	RegionAvailable       RegionType = 1
	RegionReserved        RegionType = 2
	RegionACPIReclaimable RegionType = 3
	RegionNVS             RegionType = 4
	RegionBadRAM          RegionType = 5
)

func (t RegionType) String() string {
	switch t {
	case RegionAvailable:
		return "available"
	case RegionReserved:
		return "reserved"
	case RegionACPIReclaimable:
		return "acpi"
	case RegionNVS:
		return "nvs"
	case RegionBadRAM:
		return "bad"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// UnmarshalText accepts either the symbolic name or the numeric value.
func (t *RegionType) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "available", "1":
		*t = RegionAvailable
	case "reserved", "2":
		*t = RegionReserved
	case "acpi", "3":
		*t = RegionACPIReclaimable
	case "nvs", "4":
		*t = RegionNVS
	case "bad", "5":
		*t = RegionBadRAM
	default:
		return fmt.Errorf("unknown memory region type %q", string(text))
	}
	return nil
}

// MarshalText returns the symbolic name.
func (t RegionType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Region is one entry of the boot memory map.
type Region struct {
	Base   uint64     `json:"base" yaml:"base"`
	Length uint64     `json:"length" yaml:"length"`
	Type   RegionType `json:"type" yaml:"type"`
}

// End returns the first address past the region.
func (r Region) End() uint64 { return r.Base + r.Length }

// Frames calls fn for every frame fully contained in the region. Partial
// frames at either end are skipped.
func (r Region) Frames(fn func(addr PhysAddr)) {
	start := AlignUp(r.Base, PageSize)
	end := AlignDown(r.End(), PageSize)
	for addr := start; addr < end; addr += PageSize {
		fn(PhysAddr(addr))
	}
}
