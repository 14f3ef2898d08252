package event

import "sync"

// Journal keeps the most recent events, oldest first.
type Journal struct {
	mux    sync.Mutex
	events []*Event[any]
	start  int
	size   int
}

// NewJournal creates a journal holding up to size events.
func NewJournal(size int) *Journal {
	if size <= 0 {
		size = 1
	}
	return &Journal{events: make([]*Event[any], 0, size), size: size}
}

// Append records e, evicting the oldest event when full.
func (j *Journal) Append(e *Event[any]) {
	j.mux.Lock()
	defer j.mux.Unlock()
	if len(j.events) < j.size {
		j.events = append(j.events, e)
		return
	}
	j.events[j.start] = e
	j.start = (j.start + 1) % j.size
}

// Events returns the recorded events, oldest first.
func (j *Journal) Events() []*Event[any] {
	j.mux.Lock()
	defer j.mux.Unlock()
	ret := make([]*Event[any], 0, len(j.events))
	ret = append(ret, j.events[j.start:]...)
	return append(ret, j.events[:j.start]...)
}

// Len returns the number of recorded events.
func (j *Journal) Len() int {
	j.mux.Lock()
	defer j.mux.Unlock()
	return len(j.events)
}
