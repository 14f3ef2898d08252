package timer

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDivisorFor(t *testing.T) {
	testCases := []struct {
		description string
		hz          uint32
		expect      Divisor
		expectErr   error
	}{
		{description: "scheduler rate", hz: 50, expect: 23863},
		{description: "kilohertz", hz: 1000, expect: 1193},
		{description: "slowest", hz: 19, expect: 62798},
		{description: "too slow", hz: 18, expectErr: ErrDivisorRange},
		{description: "too fast", hz: BaseFrequency + 1, expectErr: ErrDivisorRange},
		{description: "zero", hz: 0, expectErr: ErrInvalidFrequency},
	}
	for _, tc := range testCases {
		d, err := DivisorFor(tc.hz)
		if tc.expectErr != nil {
			assert.ErrorIs(t, err, tc.expectErr, tc.description)
			continue
		}
		require.NoError(t, err, tc.description)
		assert.Equal(t, tc.expect, d, tc.description)
	}
}

func TestDivisor_Program(t *testing.T) {
	d := Divisor(23863)
	low, high := d.Bytes()
	assert.EqualValues(t, 0x37, low)
	assert.EqualValues(t, 0x5D, high)
	assert.Equal(t, []PortWrite{
		{Port: CommandPort, Value: ModeSquareWave},
		{Port: Channel0Port, Value: 0x37},
		{Port: Channel0Port, Value: 0x5D},
	}, d.Program())
	assert.InDelta(t, 50.0, d.Frequency(), 0.01)
	assert.InDelta(t, float64(20*time.Millisecond), float64(d.Period()), float64(10*time.Microsecond))
}

type countingLine struct{ n atomic.Int64 }

func (c *countingLine) RaiseIRQ() { c.n.Add(1) }

func TestSource(t *testing.T) {
	line := &countingLine{}
	source, err := NewSource(1000, line, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	require.NoError(t, source.Start(context.Background()))
	assert.ErrorIs(t, source.Start(context.Background()), ErrRunning)

	assert.Eventually(t, func() bool { return line.n.Load() >= 3 }, 2*time.Second, time.Millisecond)
	source.Stop()
	fired := source.Fired()
	assert.EqualValues(t, fired, line.n.Load())
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, fired, source.Fired(), "a stopped source stays quiet")
	source.Stop()

	_, err = NewSource(0, line)
	assert.ErrorIs(t, err, ErrInvalidFrequency)
}
