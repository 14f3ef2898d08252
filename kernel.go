package valen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viant/afs"
	"github.com/viant/valen/internal/clock"
	"github.com/viant/valen/internal/idgen"
	"github.com/viant/valen/model/mem"
	"github.com/viant/valen/runtime/cpu"
	"github.com/viant/valen/service/console"
	"github.com/viant/valen/service/dump"
	"github.com/viant/valen/service/event"
	"github.com/viant/valen/service/fault"
	"github.com/viant/valen/service/frame"
	"github.com/viant/valen/service/heap"
	mfs "github.com/viant/valen/service/messaging/fs"
	"github.com/viant/valen/service/messaging/memory"
	"github.com/viant/valen/service/paging"
	"github.com/viant/valen/service/physmem"
	"github.com/viant/valen/service/scheduler"
	"github.com/viant/valen/service/stats"
	"github.com/viant/valen/service/task"
	"github.com/viant/valen/service/timer"
	"github.com/viant/valen/tracing"
)

// Version is reported as the tracing service version.
const Version = "0.1.0"

// Stats is a point-in-time view of the kernel.
type Stats struct {
	stats.Values
	Memory  frame.Stats `json:"memory"`
	Heap    heap.Stats  `json:"heap"`
	Queued  int         `json:"queued"`
	Current task.ID     `json:"current"`
	Uptime  string      `json:"uptime"`
}

// Kernel owns every kernel subsystem. Yield, Preempt and Exit must be called
// from task code, as must Touch while Run is active; the remaining
// operations may be called from anywhere. A halted kernel refuses Spawn and
// Kill.
type Kernel struct {
	config  *Config
	logger  *slog.Logger
	console io.Writer
	fs      afs.Service
	tracer  *tracing.Tracer
	bootID  string

	cpu      *cpu.CPU
	counters *stats.Counters
	events   *event.Service

	mux    sync.Mutex
	ready  bool
	frames *frame.Allocator
	memory *physmem.Memory
	mapper *paging.Mapper
	heap   *heap.Heap
	tasks  *task.Table
	sched  *scheduler.Scheduler
	faults *fault.Handler
	timer  *timer.Source

	running  atomic.Bool
	haltOnce sync.Once
}

var _ console.Kernel = (*Kernel)(nil)
var _ fault.Halter = (*Kernel)(nil)

// New creates an unbooted kernel.
func New(options ...Option) (*Kernel, error) {
	k := &Kernel{config: DefaultConfig(), console: io.Discard, bootID: idgen.New()}
	for _, opt := range options {
		opt(k)
	}
	if err := k.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if k.logger == nil {
		k.logger = k.config.Log.NewLogger(os.Stderr)
	}
	if k.fs == nil {
		k.fs = afs.New()
	}
	if k.config.Tracing.Enabled {
		if err := tracing.Init(k.config.Tracing.ServiceName, Version, k.config.Tracing.Output); err != nil {
			return nil, fmt.Errorf("failed to initialise tracing: %w", err)
		}
	}
	if k.tracer == nil {
		k.tracer = tracing.NewTracer(nil)
	}
	k.counters = stats.New(k.bootID, clock.Now())
	k.counters.OnChange(k.onCounters)
	k.cpu = cpu.New(cpu.WithReturnHook(func(*cpu.Context) { k.Exit(0) }), cpu.WithLogger(k.logger))
	if k.events == nil {
		events, err := k.newEventService()
		if err != nil {
			return nil, err
		}
		k.events = events
	}
	return k, nil
}

func (k *Kernel) newEventService() (*event.Service, error) {
	cfg := k.config.Events
	memoryConfig := memory.DefaultConfig()
	if cfg.Buffer > 0 {
		memoryConfig.Buffer = cfg.Buffer
	}
	fsConfig := mfs.DefaultConfig()
	if cfg.BaseURL != "" {
		fsConfig.BaseURL = cfg.BaseURL
	}
	options := []event.Option{
		event.WithMemoryConfig(memoryConfig),
		event.WithFSConfig(fsConfig),
		event.WithFS(k.fs),
		event.WithBootID(k.bootID),
		event.WithLogger(k.logger),
	}
	if cfg.JournalSize > 0 {
		options = append(options, event.WithJournalSize(cfg.JournalSize))
	}
	ret, err := event.New(cfg.Vendor, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create event service: %w", err)
	}
	return ret, nil
}

// Boot brings the subsystems up in order: frame allocator, paging, heap,
// task table and scheduler, fault handler and timer.
func (k *Kernel) Boot(ctx context.Context) (err error) {
	k.mux.Lock()
	defer k.mux.Unlock()
	if k.ready {
		return ErrBooted
	}
	ctx, span := k.tracer.StartSpan(ctx, "kernel.boot", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	cfg := k.config

	if err = k.stage(ctx, "boot.frames", k.initFrames); err != nil {
		return err
	}
	k.memory = physmem.New(cfg.Memory.TotalBytes)
	k.mapper = paging.New(k.frames, k.memory,
		paging.WithKernelSize(cfg.Paging.KernelSize),
		paging.WithAllocBase(mem.VirtAddr(cfg.Paging.AllocBase)),
		paging.WithLogger(k.logger))
	if err = k.stage(ctx, "boot.paging", k.mapper.Init); err != nil {
		return fmt.Errorf("failed to initialise paging: %w", err)
	}
	k.heap = heap.New(k.mapper,
		heap.WithBase(mem.VirtAddr(cfg.Heap.Base)),
		heap.WithMaxSize(cfg.Heap.MaxSize),
		heap.WithGrowPages(cfg.Heap.GrowPages),
		heap.WithLogger(k.logger))
	k.tasks = task.NewTable(k.heap, task.WithStackSize(cfg.Scheduler.StackSize), task.WithLogger(k.logger))
	k.sched = scheduler.New(k.tasks, k.cpu,
		scheduler.WithQuota(cfg.Scheduler.Quota),
		scheduler.WithIdle(func() { k.Halt(ErrIdle) }),
		scheduler.WithHooks(k.taskHooks()),
		scheduler.WithStats(k.counters),
		scheduler.WithLogger(k.logger))
	k.sched.Init()
	k.faults = fault.New(k,
		fault.WithOutput(k.console),
		fault.WithStats(k.counters),
		fault.WithNotify(k.onFault),
		fault.WithLogger(k.logger))
	if cfg.Timer.Enabled {
		if k.timer, err = timer.NewSource(cfg.Timer.Hz, k.cpu, timer.WithLogger(k.logger)); err != nil {
			return fmt.Errorf("failed to program timer: %w", err)
		}
	}
	k.ready = true
	if cfg.Events.Follow {
		k.events.Follow(k.logEvent)
	}

	memStats := k.frames.Stats()
	k.logger.Info("kernel booted", "bootID", k.bootID, "totalKB", memStats.TotalKB(), "freeKB", memStats.FreeKB())
	k.publish(event.KindBooted, 0, event.Kernel{Message: fmt.Sprintf("booted with %d KB free", memStats.FreeKB())})
	return nil
}

func (k *Kernel) initFrames() error {
	cfg := k.config.Memory
	k.frames = frame.New(mem.VirtAddr(cfg.BitmapAddr), cfg.TotalBytes,
		frame.WithReservedBelow(mem.PhysAddr(cfg.ReservedBelow)),
		frame.WithExhaustedListener(k.onExhausted),
		frame.WithLogger(k.logger))
	released := k.frames.MarkRegions(k.config.Regions())
	if released == 0 {
		return fmt.Errorf("no available memory in a %d byte memory map", cfg.TotalBytes)
	}
	return nil
}

func (k *Kernel) stage(ctx context.Context, name string, fn func() error) error {
	_, span := k.tracer.StartSpan(ctx, name, "INTERNAL")
	err := fn()
	tracing.EndSpan(span, err)
	return err
}

// Run starts the timer and the first task, then blocks until the kernel
// halts or ctx is done. It returns nil once every task has exited.
func (k *Kernel) Run(ctx context.Context) error {
	if !k.booted() {
		return ErrNotBooted
	}
	if !k.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer k.running.Store(false)
	if k.cpu.Halted() {
		return k.result(k.cpu.Err())
	}
	if k.timer != nil {
		if err := k.timer.Start(ctx); err != nil {
			return err
		}
		defer k.timer.Stop()
	}
	k.sched.Schedule()
	if _, ok := k.sched.Current(); !ok {
		k.Halt(ErrIdle)
	}
	err := k.cpu.Wait(ctx)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		k.Halt(err)
		return err
	}
	return k.result(err)
}

func (k *Kernel) result(err error) error {
	if errors.Is(err, ErrIdle) {
		return nil
	}
	return err
}

// Spawn creates a task running entry. The calling task, if any, becomes
// its parent.
func (k *Kernel) Spawn(entry func(), name string) (task.ID, error) {
	if err := k.mutable(); err != nil {
		return 0, err
	}
	_, span := k.tracer.StartSpan(context.Background(), "task.spawn", "INTERNAL")
	h, err := k.sched.Spawn(entry, name)
	var id task.ID
	if err == nil {
		t, _ := k.tasks.Get(h)
		id = t.ID
		span.WithAttributes(map[string]string{"task.name": t.Name}).WithInt("task.id", int64(id))
	}
	tracing.EndSpan(span, err)
	return id, err
}

// Yield gives the processor to the next task.
func (k *Kernel) Yield() {
	k.parkIfHalted()
	k.sched.Yield()
	k.parkIfHalted()
}

// Preempt delivers pending timer interrupts to the scheduler. Tasks call it
// at their preemption points.
func (k *Kernel) Preempt() {
	k.parkIfHalted()
	for n := k.cpu.TakeIRQs(); n > 0; n-- {
		k.sched.Tick()
		k.parkIfHalted()
	}
}

// Exit terminates the calling task with code. It does not return.
func (k *Kernel) Exit(code int) {
	current, ok := k.sched.Current()
	if !ok {
		return
	}
	if !k.cpu.Halted() {
		k.sched.Exit(code)
	}
	k.cpu.Park(current.Context)
}

// Kill terminates a queued task other than the running one.
func (k *Kernel) Kill(id task.ID) error {
	if err := k.mutable(); err != nil {
		return err
	}
	_, span := k.tracer.StartSpan(context.Background(), "task.kill", "INTERNAL")
	span.WithInt("task.id", int64(id))
	err := k.sched.Kill(id)
	tracing.EndSpan(span, err)
	return err
}

// Reap reclaims terminated tasks and returns how many were reclaimed. After
// a halt it reclaims only when every task exited; a faulted kernel is left
// as it stopped.
func (k *Kernel) Reap() int {
	if !k.booted() {
		return 0
	}
	if k.cpu.Halted() && !errors.Is(k.cpu.Err(), ErrIdle) {
		return 0
	}
	_, span := k.tracer.StartSpan(context.Background(), "task.reap", "INTERNAL")
	n := k.sched.Reap()
	span.WithInt("task.reaped", int64(n))
	tracing.EndSpan(span, nil)
	return n
}

// Touch performs a kernel-mode access to virt. An access the mapping does
// not permit is a fatal page fault: the fault is reported and the kernel
// halts. A faulting task never resumes; outside Run the fault is returned.
func (k *Kernel) Touch(virt mem.VirtAddr, write bool) error {
	if !k.booted() {
		return ErrNotBooted
	}
	inTask := k.running.Load()
	if inTask {
		k.parkIfHalted()
	}
	err := k.mapper.Access(virt, write, false)
	var pageFault *paging.PageFault
	if !errors.As(err, &pageFault) {
		return err
	}
	current, hasCurrent := k.sched.Current()
	k.faults.Handle(pageFault)
	if inTask && hasCurrent {
		k.cpu.Park(current.Context)
	}
	return err
}

// Halt stops the kernel permanently. The first reason wins. Pending events
// are journaled before the processor stops, so Run's caller sees them all.
func (k *Kernel) Halt(reason error) {
	if reason == nil {
		reason = cpu.ErrHalted
	}
	k.haltOnce.Do(func() {
		k.publish(event.KindHalted, 0, event.Kernel{Message: reason.Error()})
		k.events.Stop()
		if _, err := k.events.Drain(context.Background()); err != nil {
			k.logger.Error("failed to drain kernel events", "error", err)
		}
		k.cpu.Halt(reason)
	})
}

// Err returns the halt reason, or nil while the kernel runs.
func (k *Kernel) Err() error { return k.cpu.Err() }

// Stats returns the kernel counters together with memory and queue state.
func (k *Kernel) Stats() Stats {
	ret := Stats{Values: k.counters.Snapshot(), Current: -1}
	ret.Uptime = clock.Since(ret.BootedAt).Truncate(time.Millisecond).String()
	if !k.booted() {
		return ret
	}
	ret.Memory = k.frames.Stats()
	ret.Heap = k.heap.Stats()
	ret.Queued = k.tasks.Len()
	ret.Current = k.sched.CurrentID()
	return ret
}

// MemoryStats returns the frame allocator counters.
func (k *Kernel) MemoryStats() frame.Stats { return k.frames.Stats() }

// Processes lists the live tasks.
func (k *Kernel) Processes() []dump.Process {
	return dump.Processes(k.tasks, k.sched.CurrentID())
}

// Translate resolves a virtual address.
func (k *Kernel) Translate(virt mem.VirtAddr) (mem.PhysAddr, bool) {
	return k.mapper.Translate(virt)
}

// Ticks returns the timer ticks accounted since boot.
func (k *Kernel) Ticks() uint64 { return k.sched.Ticks() }

// Events drains pending kernel events and returns the journal.
func (k *Kernel) Events(ctx context.Context) ([]*event.Event[any], error) {
	if _, err := k.events.Drain(ctx); err != nil {
		return nil, err
	}
	return k.events.Journal().Events(), nil
}

// Dump captures frames, mappings and tasks.
func (k *Kernel) Dump() (*dump.Dump, error) {
	if !k.booted() {
		return nil, ErrNotBooted
	}
	return dump.Take(dump.Sources{Frames: k.frames, Mappings: k.mapper, Tasks: k.tasks, Current: k.sched.CurrentID()})
}

// SaveDump writes a dump to URL.
func (k *Kernel) SaveDump(ctx context.Context, URL string) error {
	d, err := k.Dump()
	if err != nil {
		return err
	}
	return dump.Save(ctx, k.fs, URL, d)
}

// Config returns the kernel configuration.
func (k *Kernel) Config() *Config { return k.config }

// BootID returns the boot session id.
func (k *Kernel) BootID() string { return k.bootID }

// CPU returns the processor.
func (k *Kernel) CPU() *cpu.CPU { return k.cpu }

// Counters returns the kernel counters.
func (k *Kernel) Counters() *stats.Counters { return k.counters }

// EventService returns the event service.
func (k *Kernel) EventService() *event.Service { return k.events }

// Frames returns the frame allocator.
func (k *Kernel) Frames() *frame.Allocator { return k.frames }

// Mapper returns the address-space mapper.
func (k *Kernel) Mapper() *paging.Mapper { return k.mapper }

// Heap returns the kernel heap.
func (k *Kernel) Heap() *heap.Heap { return k.heap }

// Tasks returns the task table.
func (k *Kernel) Tasks() *task.Table { return k.tasks }

// Scheduler returns the scheduler.
func (k *Kernel) Scheduler() *scheduler.Scheduler { return k.sched }

// Timer returns the timer source, or nil when the timer is disabled.
func (k *Kernel) Timer() *timer.Source { return k.timer }

// mutable reports why the kernel refuses a state change, if it does.
func (k *Kernel) mutable() error {
	if !k.booted() {
		return ErrNotBooted
	}
	if k.cpu.Halted() {
		return fmt.Errorf("%w: %w", ErrHalted, k.cpu.Err())
	}
	return nil
}

func (k *Kernel) booted() bool {
	k.mux.Lock()
	defer k.mux.Unlock()
	return k.ready
}

// parkIfHalted stops the calling task once the processor has halted.
func (k *Kernel) parkIfHalted() {
	if !k.cpu.Halted() {
		return
	}
	if current, ok := k.sched.Current(); ok {
		k.cpu.Park(current.Context)
	}
}

func (k *Kernel) taskHooks() scheduler.Hooks {
	publishTask := func(kind event.Kind) func(t *task.Task) {
		return func(t *task.Task) {
			k.publish(kind, int64(t.ID), event.Task{
				ID:       int64(t.ID),
				Name:     t.Name,
				State:    t.State.String(),
				ExitCode: t.ExitCode,
				Parent:   t.Parent.String(),
			})
		}
	}
	return scheduler.Hooks{
		Spawned: publishTask(event.KindTaskCreated),
		Exited:  publishTask(event.KindTaskExited),
		Killed:  publishTask(event.KindTaskKilled),
		Reaped:  publishTask(event.KindTaskReaped),
	}
}

func (k *Kernel) onFault(f *paging.PageFault) {
	var taskID int64
	if k.sched != nil {
		taskID = int64(k.sched.CurrentID())
	}
	k.publish(event.KindPageFault, taskID, event.Fault{Addr: uint64(f.Addr), Code: f.Code, Cause: f.Cause()})
}

func (k *Kernel) onExhausted() {
	s := k.frames.Stats()
	k.publish(event.KindMemoryExhausted, 0, event.Memory{TotalPages: s.TotalPages, UsedPages: s.UsedPages})
}

func (k *Kernel) logEvent(e *event.Event[any]) {
	k.logger.Info("kernel event", "kind", e.Context.Kind, "task", e.Context.TaskID, "data", fmt.Sprint(e.Data))
}

func (k *Kernel) onCounters(v stats.Values) {
	k.logger.Debug("kernel counters", "switches", v.Switches, "ticks", v.Ticks, "spawned", v.Spawned,
		"exited", v.Exited, "killed", v.Killed, "reaped", v.Reaped, "faults", v.Faults)
}

func (k *Kernel) publish(kind event.Kind, taskID int64, data any) {
	if err := event.Publish(context.Background(), k.events, kind, taskID, data); err != nil {
		k.logger.Debug("kernel event not queued", "kind", kind, "error", err)
	}
}
