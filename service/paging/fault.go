package paging

import (
	"fmt"
	"strings"

	"github.com/viant/valen/model/mem"
)

// Page-fault error code bits.
const (
	FaultProtection uint64 = 1 << 0
	FaultWrite      uint64 = 1 << 1
	FaultUser       uint64 = 1 << 2
)

// PageFault describes a failed access: the faulting address and the
// hardware-style error code.
type PageFault struct {
	Addr mem.VirtAddr
	Code uint64
}

// NewPageFault builds a fault for an access of the given kind.
func NewPageFault(addr mem.VirtAddr, protection, write, user bool) *PageFault {
	ret := &PageFault{Addr: addr}
	if protection {
		ret.Code |= FaultProtection
	}
	if write {
		ret.Code |= FaultWrite
	}
	if user {
		ret.Code |= FaultUser
	}
	return ret
}

// Protection reports a protection violation (as opposed to a missing page).
func (f *PageFault) Protection() bool { return f.Code&FaultProtection != 0 }

// Write reports a faulting write.
func (f *PageFault) Write() bool { return f.Code&FaultWrite != 0 }

// User reports a fault raised in user mode.
func (f *PageFault) User() bool { return f.Code&FaultUser != 0 }

// Cause decodes the error code.
func (f *PageFault) Cause() string {
	var b strings.Builder
	if f.Protection() {
		b.WriteString("[Protection Violation]")
	} else {
		b.WriteString("[Non-present Page]")
	}
	if f.Write() {
		b.WriteString(" [Write]")
	} else {
		b.WriteString(" [Read]")
	}
	if f.User() {
		b.WriteString(" [User Mode]")
	} else {
		b.WriteString(" [Kernel Mode]")
	}
	return b.String()
}

func (f *PageFault) Error() string {
	return fmt.Sprintf("page fault at %v (code %d): %s", f.Addr, f.Code, f.Cause())
}
