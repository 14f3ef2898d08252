package timer

import (
	"errors"
	"fmt"
	"time"
)

const (
	// BaseFrequency is the PIT input clock in Hz.
	BaseFrequency = 1193180
	// CommandPort is the mode/command register.
	CommandPort = 0x43
	// Channel0Port is the channel 0 data port.
	Channel0Port = 0x40
	// ModeSquareWave selects channel 0, lobyte/hibyte access, mode 3.
	ModeSquareWave = 0x36
)

var (
	// ErrInvalidFrequency is returned for a zero frequency.
	ErrInvalidFrequency = errors.New("timer: invalid frequency")
	// ErrDivisorRange is returned when the divisor does not fit 16 bits.
	ErrDivisorRange = errors.New("timer: divisor out of range")
)

// Divisor is the channel 0 reload value.
type Divisor uint16

// DivisorFor returns the divisor producing hz interrupts per second.
func DivisorFor(hz uint32) (Divisor, error) {
	if hz == 0 {
		return 0, ErrInvalidFrequency
	}
	d := BaseFrequency / hz
	if d == 0 || d > 0xFFFF {
		return 0, fmt.Errorf("%w: %d Hz needs divisor %d", ErrDivisorRange, hz, d)
	}
	return Divisor(d), nil
}

// Frequency returns the interrupt rate in Hz.
func (d Divisor) Frequency() float64 {
	if d == 0 {
		return 0
	}
	return float64(BaseFrequency) / float64(d)
}

// Period returns the time between interrupts.
func (d Divisor) Period() time.Duration {
	return time.Duration(uint64(d) * uint64(time.Second) / BaseFrequency)
}

// Bytes splits the divisor into the low and high byte written to the data
// port, in that order.
func (d Divisor) Bytes() (low, high byte) {
	return byte(d & 0xFF), byte(d >> 8)
}

// PortWrite is one byte written to an I/O port.
type PortWrite struct {
	Port  uint16
	Value byte
}

// Program returns the port writes that set channel 0 to d.
func (d Divisor) Program() []PortWrite {
	low, high := d.Bytes()
	return []PortWrite{
		{Port: CommandPort, Value: ModeSquareWave},
		{Port: Channel0Port, Value: low},
		{Port: Channel0Port, Value: high},
	}
}
