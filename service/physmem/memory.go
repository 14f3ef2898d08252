// Package physmem simulates the physical memory that backs page tables. Only
// frames that have been written are materialised; reads of untouched memory
// return zero.
package physmem

import (
	"fmt"
	"sync"

	"github.com/viant/valen/model/mem"
)

const wordsPerFrame = mem.PageSize / 8

type frame [wordsPerFrame]uint64

// Memory is a sparse, word-addressable physical memory.
type Memory struct {
	mux    sync.RWMutex
	size   uint64
	frames map[uint64]*frame
}

// New creates a memory of size bytes.
func New(size uint64) *Memory {
	return &Memory{size: size, frames: make(map[uint64]*frame)}
}

// Size returns the memory size in bytes.
func (m *Memory) Size() uint64 { return m.size }

// Read returns the 64-bit word at addr.
func (m *Memory) Read(addr mem.PhysAddr) (uint64, error) {
	if err := m.check(addr); err != nil {
		return 0, err
	}
	m.mux.RLock()
	defer m.mux.RUnlock()
	f, ok := m.frames[addr.Frame()]
	if !ok {
		return 0, nil
	}
	return f[wordIndex(addr)], nil
}

// Write stores a 64-bit word at addr.
func (m *Memory) Write(addr mem.PhysAddr, value uint64) error {
	if err := m.check(addr); err != nil {
		return err
	}
	m.mux.Lock()
	defer m.mux.Unlock()
	f, ok := m.frames[addr.Frame()]
	if !ok {
		if value == 0 {
			return nil
		}
		f = &frame{}
		m.frames[addr.Frame()] = f
	}
	f[wordIndex(addr)] = value
	return nil
}

// Zero clears the frame containing addr.
func (m *Memory) Zero(addr mem.PhysAddr) error {
	if err := m.check(addr); err != nil {
		return err
	}
	m.mux.Lock()
	defer m.mux.Unlock()
	delete(m.frames, addr.Frame())
	return nil
}

// Resident returns the number of materialised frames.
func (m *Memory) Resident() int {
	m.mux.RLock()
	defer m.mux.RUnlock()
	return len(m.frames)
}

func (m *Memory) check(addr mem.PhysAddr) error {
	if uint64(addr)&7 != 0 {
		return fmt.Errorf("physmem: unaligned word access at %v", addr)
	}
	if uint64(addr) >= m.size {
		return fmt.Errorf("physmem: address %v beyond %#x", addr, m.size)
	}
	return nil
}

func wordIndex(addr mem.PhysAddr) uint64 {
	return (uint64(addr) & (mem.PageSize - 1)) / 8
}
