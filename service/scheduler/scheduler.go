package scheduler

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/viant/valen/runtime/cpu"
	"github.com/viant/valen/service/stats"
	"github.com/viant/valen/service/task"
)

// DefaultQuota is the number of ticks between forced reschedules.
const DefaultQuota = 25

// Hooks observe task lifecycle transitions. Nil members are skipped. Hooks
// run on the calling task's stream with no scheduler lock held.
type Hooks struct {
	Spawned func(t *task.Task)
	Exited  func(t *task.Task)
	Killed  func(t *task.Task)
	Reaped  func(t *task.Task)
}

// Scheduler is a round-robin scheduler.
type Scheduler struct {
	mux      sync.Mutex
	table    *task.Table
	switcher cpu.Switcher
	quota    int
	idle     func()
	hooks    Hooks
	counters *stats.Counters
	logger   *slog.Logger

	current   task.Handle
	successor task.Handle
	counter   int
	ticks     uint64
	zombies   []task.Handle
}

// New creates a scheduler over table driving switcher.
func New(table *task.Table, switcher cpu.Switcher, options ...Option) *Scheduler {
	ret := &Scheduler{
		table:    table,
		switcher: switcher,
		quota:    DefaultQuota,
		logger:   slog.Default(),
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Init resets the scheduler: no current task and counters at zero. Pending
// zombies are reclaimed first.
func (s *Scheduler) Init() {
	s.mux.Lock()
	s.current = task.Handle{}
	s.successor = task.Handle{}
	s.counter = 0
	s.ticks = 0
	s.mux.Unlock()
	s.Reap()
}

// Schedule hands the processor to the next queued task. It does nothing
// when the queue is empty or the choice is the current task. Without a
// current task the chosen one is jumped to; the caller is not saved.
func (s *Scheduler) Schedule() {
	s.mux.Lock()
	prev, next := s.pick()
	if next == nil {
		s.mux.Unlock()
		return
	}
	s.current = next.Handle()
	s.successor = task.Handle{}
	// Every switch, Yield included, starts a fresh quota for the next task.
	s.counter = 0
	s.mux.Unlock()

	s.counters.Update(stats.Delta{Switches: 1})
	if prev == nil {
		s.logger.Debug("starting task", "task", next.String())
		s.switcher.Jump(next.Context)
		return
	}
	s.switcher.Switch(prev.Context, next.Context)
}

// Yield gives up the processor voluntarily.
func (s *Scheduler) Yield() {
	s.Schedule()
}

// Tick accounts one timer interrupt. Ticks arriving before any task runs
// are ignored; every quota ticks the current task is preempted.
func (s *Scheduler) Tick() {
	s.mux.Lock()
	if s.current.IsZero() {
		s.mux.Unlock()
		return
	}
	s.ticks++
	s.counter++
	expired := s.counter >= s.quota
	if expired {
		s.counter = 0
	}
	s.mux.Unlock()

	s.counters.Update(stats.Delta{Ticks: 1})
	if expired {
		s.Schedule()
	}
}

// Spawn creates a task whose parent is the current task.
func (s *Scheduler) Spawn(entry func(), name string) (task.Handle, error) {
	s.mux.Lock()
	parent := s.current
	s.mux.Unlock()
	h, err := s.table.Create(entry, name, parent)
	if err != nil {
		return task.Handle{}, err
	}
	t, _ := s.table.Get(h)
	s.logger.Debug("task created", "task", t.String(), "parent", parent.String())
	s.counters.Update(stats.Delta{Spawned: 1})
	if s.hooks.Spawned != nil {
		s.hooks.Spawned(t)
	}
	return h, nil
}

// Exit terminates the current task with code and hands the processor to
// its queue successor. When nothing else is runnable the idle hook runs and
// Exit returns; otherwise it does not return to the exiting task.
func (s *Scheduler) Exit(code int) {
	s.mux.Lock()
	current, ok := s.table.Get(s.current)
	if !ok {
		s.mux.Unlock()
		return
	}
	current.State = task.Zombie
	current.ExitCode = code
	h := current.Handle()
	if next, ok := s.table.Next(h); ok && next != h {
		s.successor = next
	}
	if err := s.table.Remove(h); err != nil {
		s.logger.Error("failed to dequeue exiting task", "task", current.String(), "error", err)
	}
	s.zombies = append(s.zombies, h)
	runnable := s.table.Len() > 0
	if !runnable {
		s.current = task.Handle{}
	}
	s.mux.Unlock()

	s.logger.Info("task exiting", "task", current.Name, "id", current.ID, "code", code)
	s.counters.Update(stats.Delta{Exited: 1})
	if s.hooks.Exited != nil {
		s.hooks.Exited(current)
	}
	if !runnable {
		s.logger.Info("no runnable task left")
		if s.idle != nil {
			s.idle()
		}
		return
	}
	s.Schedule()
}

// Kill terminates a queued task other than the current one. Its stack and
// control block are reclaimed later by Reap.
func (s *Scheduler) Kill(id task.ID) error {
	if id <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	s.mux.Lock()
	h, ok := s.table.FindByID(id)
	if !ok {
		s.mux.Unlock()
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if h == s.current {
		s.mux.Unlock()
		return fmt.Errorf("%w: %d", ErrKillCurrent, id)
	}
	target, _ := s.table.Get(h)
	target.State = task.Zombie
	if err := s.table.Remove(h); err != nil {
		s.mux.Unlock()
		return err
	}
	s.zombies = append(s.zombies, h)
	s.mux.Unlock()

	s.logger.Info("task killed", "task", target.Name, "id", target.ID)
	s.counters.Update(stats.Delta{Killed: 1})
	if s.hooks.Killed != nil {
		s.hooks.Killed(target)
	}
	return nil
}

// Reap reclaims the stack and control block of every terminated task that
// is not running and returns how many were reclaimed.
func (s *Scheduler) Reap() int {
	s.mux.Lock()
	var pending, keep []task.Handle
	for _, h := range s.zombies {
		if h == s.current {
			keep = append(keep, h)
			continue
		}
		pending = append(pending, h)
	}
	s.zombies = keep
	s.mux.Unlock()

	reaped := 0
	for _, h := range pending {
		t, ok := s.table.Get(h)
		if !ok {
			continue
		}
		if err := s.table.Release(h); err != nil {
			s.logger.Error("failed to reclaim task", "task", t.String(), "error", err)
			continue
		}
		s.switcher.Release(t.Context)
		reaped++
		if s.hooks.Reaped != nil {
			s.hooks.Reaped(t)
		}
	}
	if reaped > 0 {
		s.counters.Update(stats.Delta{Reaped: reaped})
	}
	return reaped
}

// Current returns the running task.
func (s *Scheduler) Current() (*task.Task, bool) {
	s.mux.Lock()
	h := s.current
	s.mux.Unlock()
	return s.table.Get(h)
}

// CurrentID returns the id of the running task, or -1.
func (s *Scheduler) CurrentID() task.ID {
	if t, ok := s.Current(); ok {
		return t.ID
	}
	return -1
}

// Ticks returns the number of ticks accounted since Init.
func (s *Scheduler) Ticks() uint64 {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.ticks
}

// Zombies returns the number of terminated tasks awaiting Reap.
func (s *Scheduler) Zombies() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return len(s.zombies)
}

// Quota returns the preemption quota in ticks.
func (s *Scheduler) Quota() int { return s.quota }

// pick chooses the next task; the lock must be held. A nil next means no
// switch.
func (s *Scheduler) pick() (prev, next *task.Task) {
	head, ok := s.table.Head()
	if !ok {
		return nil, nil
	}
	current, hasCurrent := s.table.Get(s.current)
	var candidate task.Handle
	switch {
	case !hasCurrent:
		candidate = head
	case current.Queued():
		candidate, _ = s.table.Next(s.current)
	case s.table.Contains(s.successor):
		candidate = s.successor
	default:
		candidate = head
	}
	if candidate == s.current {
		return nil, nil
	}
	next, _ = s.table.Get(candidate)
	if hasCurrent {
		prev = current
	}
	return prev, next
}
