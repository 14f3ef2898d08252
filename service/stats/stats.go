package stats

import (
	"sync"
	"time"
)

// Delta is an incremental counter change.
type Delta struct {
	Switches int
	Ticks    int
	Spawned  int
	Exited   int
	Killed   int
	Reaped   int
	Faults   int
}

// Values is a consistent copy of the counters.
type Values struct {
	BootID   string    `json:"bootID"`
	BootedAt time.Time `json:"bootedAt"`
	Switches int       `json:"switches"`
	Ticks    int       `json:"ticks"`
	Spawned  int       `json:"spawned"`
	Exited   int       `json:"exited"`
	Killed   int       `json:"killed"`
	Reaped   int       `json:"reaped"`
	Faults   int       `json:"faults"`
}

// Zombies returns the number of terminated tasks not yet reclaimed.
func (v Values) Zombies() int {
	return v.Exited + v.Killed - v.Reaped
}

// Counters accumulates deltas. It is safe for concurrent use; a nil
// *Counters ignores updates.
type Counters struct {
	mux      sync.Mutex
	values   Values
	onChange func(Values)
}

// New creates counters for one boot session.
func New(bootID string, bootedAt time.Time) *Counters {
	return &Counters{values: Values{BootID: bootID, BootedAt: bootedAt}}
}

// Update applies d. The change callback, if any, runs after the lock is
// released with a copy of the updated values.
func (c *Counters) Update(d Delta) {
	if c == nil {
		return
	}
	c.mux.Lock()
	c.values.Switches += d.Switches
	c.values.Ticks += d.Ticks
	c.values.Spawned += d.Spawned
	c.values.Exited += d.Exited
	c.values.Killed += d.Killed
	c.values.Reaped += d.Reaped
	c.values.Faults += d.Faults
	snapshot := c.values
	cb := c.onChange
	c.mux.Unlock()
	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns the current values.
func (c *Counters) Snapshot() Values {
	if c == nil {
		return Values{}
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.values
}

// OnChange registers the callback run after every Update; nil disables it.
func (c *Counters) OnChange(cb func(Values)) {
	if c == nil {
		return
	}
	c.mux.Lock()
	c.onChange = cb
	c.mux.Unlock()
}
