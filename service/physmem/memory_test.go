package physmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/valen/model/mem"
)

func TestMemory_ReadWrite(t *testing.T) {
	m := New(16 << 20)
	v, err := m.Read(0x200008)
	assert.NoError(t, err)
	assert.EqualValues(t, 0, v)
	assert.Equal(t, 0, m.Resident())

	assert.NoError(t, m.Write(0x200008, 0xdeadbeef))
	v, err = m.Read(0x200008)
	assert.NoError(t, err)
	assert.EqualValues(t, 0xdeadbeef, v)
	assert.Equal(t, 1, m.Resident())

	assert.NoError(t, m.Zero(0x200000))
	v, _ = m.Read(0x200008)
	assert.EqualValues(t, 0, v)
	assert.Equal(t, 0, m.Resident())
}

func TestMemory_Errors(t *testing.T) {
	m := New(16 << 20)
	testCases := []struct {
		description string
		addr        mem.PhysAddr
	}{
		{description: "unaligned", addr: 0x200004},
		{description: "beyond size", addr: 16 << 20},
	}
	for _, tc := range testCases {
		_, err := m.Read(tc.addr)
		assert.Error(t, err, tc.description)
		assert.Error(t, m.Write(tc.addr, 1), tc.description)
	}
	assert.NoError(t, m.Write(0x300000, 0), "zero write to untouched frame")
	assert.Equal(t, 0, m.Resident())
}
