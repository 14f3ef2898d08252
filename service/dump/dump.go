package dump

import (
	"fmt"
	"io"
	"strings"

	"github.com/viant/valen/model/mem"
	"github.com/viant/valen/service/frame"
	"github.com/viant/valen/service/paging"
	"github.com/viant/valen/service/task"
)

// FrameView exposes the frame bitmap.
type FrameView interface {
	Snapshot() []byte
	Stats() frame.Stats
}

// MappingWalker enumerates present page mappings.
type MappingWalker interface {
	Walk(fn func(mapping paging.Mapping) bool) error
}

// TaskView enumerates live tasks and resolves parent handles.
type TaskView interface {
	Each(fn func(t *task.Task) bool)
	Get(h task.Handle) (*task.Task, bool)
}

// Sources groups what a Dump is taken from. Nil members are skipped.
type Sources struct {
	Frames   FrameView
	Mappings MappingWalker
	Tasks    TaskView
	Current  task.ID
}

// Range is a run of frames sharing one state.
type Range struct {
	Start mem.PhysAddr
	Pages uint64
	Used  bool
}

// End returns the first address past the range.
func (r Range) End() mem.PhysAddr {
	return r.Start + mem.PhysAddr(r.Pages*mem.PageSize)
}

func (r Range) String() string {
	state := "free"
	if r.Used {
		state = "used"
	}
	return fmt.Sprintf("0x%012x-0x%012x %-4s %d pages", uint64(r.Start), uint64(r.End()), state, r.Pages)
}

// Process is one row of the task table.
type Process struct {
	ID       task.ID
	ParentID task.ID
	Name     string
	State    task.State
	Queued   bool
	Current  bool
	ExitCode int
}

func (p Process) String() string {
	marker := " "
	if p.Current {
		marker = "*"
	}
	return fmt.Sprintf("%s%5d %5d %-2s %-15s %d", marker, p.ID, p.ParentID, p.State.Code(), p.Name, p.ExitCode)
}

// Dump is a point-in-time view of kernel state.
type Dump struct {
	Memory   frame.Stats
	Frames   []Range
	Mappings []paging.Mapping
	Tasks    []Process
}

// Take captures a dump from src.
func Take(src Sources) (*Dump, error) {
	ret := &Dump{}
	if src.Frames != nil {
		ret.Memory = src.Frames.Stats()
		ret.Frames = Ranges(src.Frames.Snapshot(), ret.Memory.TotalPages)
	}
	if src.Mappings != nil {
		err := src.Mappings.Walk(func(mapping paging.Mapping) bool {
			ret.Mappings = append(ret.Mappings, mapping)
			return true
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk mappings: %w", err)
		}
	}
	if src.Tasks != nil {
		ret.Tasks = Processes(src.Tasks, src.Current)
	}
	return ret, nil
}

// Ranges folds a frame bitmap into runs of equal state.
func Ranges(bitmap []byte, totalPages uint64) []Range {
	var ret []Range
	for n := uint64(0); n < totalPages && n/8 < uint64(len(bitmap)); n++ {
		used := bitmap[n/8]&(1<<(n%8)) != 0
		if last := len(ret) - 1; last >= 0 && ret[last].Used == used {
			ret[last].Pages++
			continue
		}
		ret = append(ret, Range{Start: mem.FrameAddr(n), Pages: 1, Used: used})
	}
	return ret
}

// Processes lists the live tasks in id order.
func Processes(tasks TaskView, current task.ID) []Process {
	var ret []Process
	tasks.Each(func(t *task.Task) bool {
		p := Process{
			ID:       t.ID,
			Name:     t.Name,
			State:    t.State,
			Queued:   t.Queued(),
			Current:  t.ID == current,
			ExitCode: t.ExitCode,
		}
		if parent, ok := tasks.Get(t.Parent); ok {
			p.ParentID = parent.ID
		}
		ret = append(ret, p)
		return true
	})
	for i := 1; i < len(ret); i++ {
		for j := i; j > 0 && ret[j].ID < ret[j-1].ID; j-- {
			ret[j], ret[j-1] = ret[j-1], ret[j]
		}
	}
	return ret
}

// WriteProcesses writes the ps table.
func WriteProcesses(w io.Writer, processes []Process) error {
	if _, err := fmt.Fprintf(w, " %5s %5s %-2s %-15s %s\n", "PID", "PPID", "S", "NAME", "EXIT"); err != nil {
		return err
	}
	for _, p := range processes {
		if _, err := fmt.Fprintln(w, p.String()); err != nil {
			return err
		}
	}
	return nil
}

// WriteTo renders the dump.
func (d *Dump) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "== memory ==\n")
	fmt.Fprintf(&sb, "total %d KB, used %d KB, free %d KB\n", d.Memory.TotalKB(), d.Memory.UsedKB(), d.Memory.FreeKB())
	for _, r := range d.Frames {
		sb.WriteString(r.String())
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "== mappings ==\n")
	for _, m := range d.Mappings {
		fmt.Fprintf(&sb, "%v -> %v %s %s\n", m.Virt, m.Phys, sizeName(m.Size), m.Flags)
	}
	fmt.Fprintf(&sb, "== tasks ==\n")
	if err := WriteProcesses(&sb, d.Tasks); err != nil {
		return 0, err
	}
	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

func (d *Dump) String() string {
	var sb strings.Builder
	_, _ = d.WriteTo(&sb)
	return sb.String()
}

func sizeName(size uint64) string {
	switch size {
	case mem.GiantPageSize:
		return "1G"
	case mem.HugePageSize:
		return "2M"
	case mem.PageSize:
		return "4K"
	}
	return fmt.Sprintf("%dB", size)
}
