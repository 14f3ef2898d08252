package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCounters_Update(t *testing.T) {
	bootedAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c := New("boot-1", bootedAt)

	var seen []Values
	c.OnChange(func(v Values) { seen = append(seen, v) })

	c.Update(Delta{Spawned: 3})
	c.Update(Delta{Switches: 2, Ticks: 50})
	c.Update(Delta{Exited: 1, Killed: 1})
	c.Update(Delta{Reaped: 1})

	snapshot := c.Snapshot()
	assert.Equal(t, "boot-1", snapshot.BootID)
	assert.Equal(t, bootedAt, snapshot.BootedAt)
	assert.Equal(t, 3, snapshot.Spawned)
	assert.Equal(t, 2, snapshot.Switches)
	assert.Equal(t, 50, snapshot.Ticks)
	assert.Equal(t, 1, snapshot.Zombies())
	assert.Len(t, seen, 4)
	assert.Equal(t, 3, seen[0].Spawned)

	c.OnChange(nil)
	c.Update(Delta{Faults: 1})
	assert.Len(t, seen, 4)
}

func TestCounters_Concurrent(t *testing.T) {
	c := New("", time.Time{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Update(Delta{Ticks: 1})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, c.Snapshot().Ticks)
}

func TestCounters_Nil(t *testing.T) {
	var c *Counters
	c.Update(Delta{Ticks: 1})
	c.OnChange(func(Values) {})
	assert.Equal(t, Values{}, c.Snapshot())
}
