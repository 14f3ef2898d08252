package paging

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/viant/valen/model/mem"
	"github.com/viant/valen/service/physmem"
)

const (
	// DefaultAllocBase is where Alloc starts handing out virtual ranges.
	DefaultAllocBase mem.VirtAddr = 0xFFFF800000000000
	// DefaultKernelSize is the size of the higher-half kernel image mapping.
	DefaultKernelSize = mem.HugePageSize
)

// FrameSource supplies the physical frames backing page tables and pages.
type FrameSource interface {
	Allocate() (mem.PhysAddr, bool)
	Free(addr mem.PhysAddr)
}

// Mapping is one present leaf translation.
type Mapping struct {
	Virt  mem.VirtAddr
	Phys  mem.PhysAddr
	Size  uint64
	Flags Flags
}

// Mapper maintains the kernel's 4-level translation hierarchy. Page tables
// live in frames of the simulated physical memory and are obtained from the
// frame allocator on demand.
//
// The mapper never frees a target frame on Unmap: whoever allocated the frame
// releases it. Alloc/AllocAt/Release are the paired helpers for frames the
// mapper allocates itself.
type Mapper struct {
	mux        sync.Mutex
	frames     FrameSource
	memory     *physmem.Memory
	root       mem.PhysAddr
	adopted    bool
	ready      bool
	kernelSize uint64
	allocBase  mem.VirtAddr
	cursor     mem.VirtAddr
	tables     int
	logger     *slog.Logger
}

// New creates a mapper. Init must be called before any mapping operation.
func New(frames FrameSource, memory *physmem.Memory, options ...Option) *Mapper {
	m := &Mapper{
		frames:     frames,
		memory:     memory,
		kernelSize: DefaultKernelSize,
		allocBase:  DefaultAllocBase,
		logger:     slog.Default(),
	}
	for _, opt := range options {
		opt(m)
	}
	m.cursor = m.allocBase
	return m
}

// Init establishes (or adopts) the root table and installs the higher-half
// kernel mapping KernelVirtOffset+[0,kernelSize) -> [0,kernelSize) with 2MiB
// pages.
func (m *Mapper) Init() error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.ready {
		return ErrAlreadyInitialised
	}
	if !m.adopted {
		root, err := m.newTable()
		if err != nil {
			return fmt.Errorf("failed to allocate root table: %w", err)
		}
		m.root = root
	}
	m.ready = true
	size := mem.AlignUp(m.kernelSize, mem.HugePageSize)
	for offset := uint64(0); offset < size; offset += mem.HugePageSize {
		virt := mem.KernelVirtOffset + mem.VirtAddr(offset)
		if err := m.mapLeaf(virt, mem.PhysAddr(offset), Writable|Global, 2); err != nil {
			return fmt.Errorf("failed to map kernel image at %v: %w", virt, err)
		}
	}
	m.logger.Info("paging initialised", "root", m.root, "adopted", m.adopted, "kernelBytes", size)
	return nil
}

// Root returns the physical address of the PML4.
func (m *Mapper) Root() mem.PhysAddr {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.root
}

// Tables returns the number of page-table frames the mapper allocated.
func (m *Mapper) Tables() int {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.tables
}

// Map installs one 4KiB translation.
func (m *Mapper) Map(virt mem.VirtAddr, phys mem.PhysAddr, flags Flags) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.mapPage(virt, phys, flags)
}

// MapHuge installs a 2MiB or 1GiB leaf.
func (m *Mapper) MapHuge(virt mem.VirtAddr, phys mem.PhysAddr, size uint64, flags Flags) error {
	var depth int
	switch size {
	case mem.HugePageSize:
		depth = 2
	case mem.GiantPageSize:
		depth = 1
	default:
		return fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	if uint64(virt)%size != 0 || uint64(phys)%size != 0 {
		return fmt.Errorf("%w: %v -> %v for %d bytes", ErrMisaligned, virt, phys, size)
	}
	m.mux.Lock()
	defer m.mux.Unlock()
	if !m.ready {
		return ErrNotInitialised
	}
	return m.mapLeaf(virt, phys, flags, depth)
}

// MapRange maps ceil(size/4096) consecutive pages and returns how many were
// installed. On error the pages installed so far stay mapped; the caller
// decides whether to unmap them.
func (m *Mapper) MapRange(virt mem.VirtAddr, phys mem.PhysAddr, size uint64, flags Flags) (int, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	pages := mem.PagesFor(size)
	for i := uint64(0); i < pages; i++ {
		offset := i * mem.PageSize
		if err := m.mapPage(virt+mem.VirtAddr(offset), phys+mem.PhysAddr(offset), flags); err != nil {
			return int(i), fmt.Errorf("failed to map page %d of %d at %v: %w", i, pages, virt+mem.VirtAddr(offset), err)
		}
	}
	return int(pages), nil
}

// Unmap clears the leaf entry translating virt. Intermediate tables are kept
// and the target frame is not freed.
func (m *Mapper) Unmap(virt mem.VirtAddr) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	addr, _, err := m.lookup(virt)
	if err != nil {
		return err
	}
	return m.memory.Write(addr, 0)
}

// Translate returns the physical address virt maps to.
func (m *Mapper) Translate(virt mem.VirtAddr) (mem.PhysAddr, bool) {
	m.mux.Lock()
	defer m.mux.Unlock()
	addr, level, err := m.lookup(virt)
	if err != nil {
		return 0, false
	}
	raw, err := m.memory.Read(addr)
	if err != nil {
		return 0, false
	}
	offset := uint64(virt) & (span(level) - 1)
	return entry(raw).addr() + mem.PhysAddr(offset), true
}

// Access checks whether an access of the given kind to virt would succeed
// and returns the *PageFault the hardware would raise otherwise.
func (m *Mapper) Access(virt mem.VirtAddr, write, user bool) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if !m.ready {
		return NewPageFault(virt, false, write, user)
	}
	table := m.root
	for level := 0; level < levels; level++ {
		e, err := m.read(table + mem.PhysAddr(index(level, virt)*8))
		if err != nil {
			return err
		}
		if !e.has(Present) {
			return NewPageFault(virt, false, write, user)
		}
		if (write && !e.has(Writable)) || (user && !e.has(User)) {
			return NewPageFault(virt, true, write, user)
		}
		if level == levels-1 || e.has(Huge) {
			return nil
		}
		table = e.addr()
	}
	return nil
}

// Alloc allocates pageCount frames and maps them at a fresh virtual range.
func (m *Mapper) Alloc(pageCount int, flags Flags) (mem.VirtAddr, error) {
	if pageCount <= 0 {
		return 0, fmt.Errorf("%w: %d pages", ErrInvalidSize, pageCount)
	}
	m.mux.Lock()
	virt := m.cursor
	m.cursor += mem.VirtAddr(uint64(pageCount) * mem.PageSize)
	m.mux.Unlock()
	if err := m.AllocAt(virt, pageCount, flags); err != nil {
		return 0, err
	}
	return virt, nil
}

// AllocAt backs pageCount pages starting at virt with fresh frames. On
// failure everything it installed is rolled back.
func (m *Mapper) AllocAt(virt mem.VirtAddr, pageCount int, flags Flags) error {
	if !virt.Aligned() {
		return fmt.Errorf("%w: %v", ErrMisaligned, virt)
	}
	m.mux.Lock()
	defer m.mux.Unlock()
	for i := 0; i < pageCount; i++ {
		page := virt + mem.VirtAddr(uint64(i)*mem.PageSize)
		phys, ok := m.frames.Allocate()
		if !ok {
			m.rollback(virt, i)
			return fmt.Errorf("failed to back page %v: %w", page, ErrOutOfFrames)
		}
		if err := m.mapPage(page, phys, flags); err != nil {
			m.frames.Free(phys)
			m.rollback(virt, i)
			return err
		}
	}
	return nil
}

// Release unmaps pageCount pages starting at virt and frees their frames.
func (m *Mapper) Release(virt mem.VirtAddr, pageCount int) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	var errs []error
	for i := 0; i < pageCount; i++ {
		page := virt + mem.VirtAddr(uint64(i)*mem.PageSize)
		if err := m.releasePage(page); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Walk visits every present leaf in ascending virtual order until fn
// returns false.
func (m *Mapper) Walk(fn func(mapping Mapping) bool) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if !m.ready {
		return ErrNotInitialised
	}
	_, err := m.walk(m.root, 0, 0, fn)
	return err
}

func (m *Mapper) walk(table mem.PhysAddr, level int, base uint64, fn func(mapping Mapping) bool) (bool, error) {
	for i := uint64(0); i < entryCount; i++ {
		e, err := m.read(table + mem.PhysAddr(i*8))
		if err != nil {
			return false, err
		}
		if !e.has(Present) {
			continue
		}
		virt := base | i<<(mem.PageShift+entriesShift*(levels-1-level))
		if level == levels-1 || e.has(Huge) {
			if !fn(Mapping{Virt: canonical(virt), Phys: e.addr(), Size: span(level), Flags: e.flags()}) {
				return false, nil
			}
			continue
		}
		more, err := m.walk(e.addr(), level+1, virt, fn)
		if err != nil || !more {
			return more, err
		}
	}
	return true, nil
}

func (m *Mapper) rollback(virt mem.VirtAddr, count int) {
	for j := 0; j < count; j++ {
		_ = m.releasePage(virt + mem.VirtAddr(uint64(j)*mem.PageSize))
	}
}

func (m *Mapper) releasePage(page mem.VirtAddr) error {
	addr, _, err := m.lookup(page)
	if err != nil {
		return fmt.Errorf("failed to release %v: %w", page, err)
	}
	e, err := m.read(addr)
	if err != nil {
		return err
	}
	if err = m.memory.Write(addr, 0); err != nil {
		return err
	}
	m.frames.Free(e.addr())
	return nil
}

func (m *Mapper) mapPage(virt mem.VirtAddr, phys mem.PhysAddr, flags Flags) error {
	if !m.ready {
		return ErrNotInitialised
	}
	if !virt.Aligned() || !phys.Aligned() {
		return fmt.Errorf("%w: %v -> %v", ErrMisaligned, virt, phys)
	}
	return m.mapLeaf(virt, phys, flags&^Huge, levels-1)
}

// mapLeaf writes a leaf at depth (3 = PT, 2 = PD, 1 = PDPT), creating missing
// intermediate tables.
func (m *Mapper) mapLeaf(virt mem.VirtAddr, phys mem.PhysAddr, flags Flags, depth int) error {
	table := m.root
	for level := 0; level < depth; level++ {
		addr := table + mem.PhysAddr(index(level, virt)*8)
		e, err := m.read(addr)
		if err != nil {
			return err
		}
		switch {
		case !e.has(Present):
			next, err := m.newTable()
			if err != nil {
				return err
			}
			e = newEntry(next, Present|Writable|flags&User)
			if err = m.memory.Write(addr, uint64(e)); err != nil {
				return err
			}
		case e.has(Huge):
			return fmt.Errorf("%w: %v", ErrHugeConflict, virt)
		case flags.Has(User) && !e.has(User):
			e = newEntry(e.addr(), e.flags()|User)
			if err = m.memory.Write(addr, uint64(e)); err != nil {
				return err
			}
		}
		table = e.addr()
	}
	leafFlags := flags | Present
	if depth < levels-1 {
		leafFlags |= Huge
	}
	addr := table + mem.PhysAddr(index(depth, virt)*8)
	return m.memory.Write(addr, uint64(newEntry(phys, leafFlags)))
}

// lookup returns the address of the present leaf entry translating virt and
// the level it sits at.
func (m *Mapper) lookup(virt mem.VirtAddr) (mem.PhysAddr, int, error) {
	if !m.ready {
		return 0, 0, ErrNotInitialised
	}
	table := m.root
	for level := 0; level < levels; level++ {
		addr := table + mem.PhysAddr(index(level, virt)*8)
		e, err := m.read(addr)
		if err != nil {
			return 0, 0, err
		}
		if !e.has(Present) {
			return 0, 0, fmt.Errorf("%w: %v", ErrNotMapped, virt)
		}
		if level == levels-1 || e.has(Huge) {
			return addr, level, nil
		}
		table = e.addr()
	}
	return 0, 0, fmt.Errorf("%w: %v", ErrNotMapped, virt)
}

func (m *Mapper) newTable() (mem.PhysAddr, error) {
	frame, ok := m.frames.Allocate()
	if !ok {
		return 0, ErrOutOfFrames
	}
	if err := m.memory.Zero(frame); err != nil {
		m.frames.Free(frame)
		return 0, err
	}
	m.tables++
	return frame, nil
}

func (m *Mapper) read(addr mem.PhysAddr) (entry, error) {
	v, err := m.memory.Read(addr)
	return entry(v), err
}
