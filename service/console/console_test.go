package console

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/valen/model/mem"
	"github.com/viant/valen/service/dump"
	"github.com/viant/valen/service/event"
	"github.com/viant/valen/service/frame"
	"github.com/viant/valen/service/task"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeKernel struct {
	killed []task.ID
	reaped int
}

func (f *fakeKernel) MemoryStats() frame.Stats {
	return frame.Stats{TotalPages: 4096, UsedPages: 1024, FreePages: 3072}
}

func (f *fakeKernel) Processes() []dump.Process {
	return []dump.Process{{ID: 1, Name: "init", State: task.Running, Current: true}}
}

func (f *fakeKernel) Kill(id task.ID) error {
	if id != 2 {
		return fmt.Errorf("no task %d", id)
	}
	f.killed = append(f.killed, id)
	return nil
}

func (f *fakeKernel) Reap() int {
	f.reaped++
	return len(f.killed)
}

func (f *fakeKernel) Translate(virt mem.VirtAddr) (mem.PhysAddr, bool) {
	if virt < mem.KernelVirtOffset {
		return 0, false
	}
	return mem.PhysAddr(virt - mem.KernelVirtOffset), true
}

func (f *fakeKernel) Ticks() uint64 { return 42 }

func (f *fakeKernel) Events(ctx context.Context) ([]*event.Event[any], error) {
	return []*event.Event[any]{
		event.NewEvent[any](&event.Context{Kind: event.KindTaskCreated, TaskID: 1}, event.Task{ID: 1, Name: "init"}),
	}, nil
}

func (f *fakeKernel) Dump() (*dump.Dump, error) {
	return &dump.Dump{Memory: f.MemoryStats(), Tasks: f.Processes()}, nil
}

func TestParse(t *testing.T) {
	testCases := []struct {
		description string
		input       string
		expect      *Command
		expectErr   error
	}{
		{description: "empty", input: ""},
		{description: "blank", input: "   \t"},
		{description: "help", input: "help", expect: &Command{Name: Help}},
		{description: "padded", input: "  mem  ", expect: &Command{Name: Mem}},
		{description: "kill", input: "kill 7", expect: &Command{Name: Kill, Args: []string{"7"}, PID: 7}},
		{description: "kill negative", input: "kill -3", expect: &Command{Name: Kill, Args: []string{"-3"}, PID: -3}},
		{description: "translate hex", input: "translate 0xffffffff80001000", expect: &Command{Name: Translate, Args: []string{"0xffffffff80001000"}, Addr: 0xffffffff80001000}},
		{description: "translate bare hex", input: "translate b8000", expect: &Command{Name: Translate, Args: []string{"b8000"}, Addr: 0xb8000}},
		{description: "unknown", input: "reboot", expectErr: ErrUnknownCommand},
		{description: "upper case", input: "HELP", expectErr: ErrUnknownCommand},
		{description: "punctuated", input: "ps-ef", expectErr: ErrUnknownCommand},
		{description: "missing pid", input: "kill", expectErr: ErrUsage},
		{description: "extra argument", input: "ps aux", expectErr: ErrUsage},
		{description: "bad pid", input: "kill one", expectErr: ErrUsage},
		{description: "bad address", input: "translate 0xzz", expectErr: ErrUsage},
	}
	for _, tc := range testCases {
		cmd, err := Parse([]byte(tc.input))
		if tc.expectErr != nil {
			assert.ErrorIs(t, err, tc.expectErr, tc.description)
			continue
		}
		require.NoError(t, err, tc.description)
		assert.Equal(t, tc.expect, cmd, tc.description)
	}
}

func TestConsole_Execute(t *testing.T) {
	testCases := []struct {
		description string
		line        string
		expect      []string
		expectErr   bool
	}{
		{description: "help", line: "help", expect: []string{"kill <pid>", "translate <addr>", "Display this menu"}},
		{description: "mem", line: "mem", expect: []string{"Total: 16384 KB", "Used:  4096 KB", "Free:  12288 KB"}},
		{description: "ps", line: "ps", expect: []string{"PID", "*    1     0 R  init"}},
		{description: "kill", line: "kill 2", expect: []string{"killed task 2"}},
		{description: "kill failure", line: "kill 9", expectErr: true},
		{description: "reap", line: "reap", expect: []string{"reaped 0 tasks"}},
		{description: "translate", line: "translate 0xffffffff80001234", expect: []string{"0xffffffff80001234 -> 0x1234"}},
		{description: "translate unmapped", line: "translate 1000", expect: []string{"0x1000: not mapped"}},
		{description: "ticks", line: "ticks", expect: []string{"ticks: 42"}},
		{description: "dmesg", line: "dmesg", expect: []string{"task.created", "init"}},
		{description: "dump", line: "dump", expect: []string{"== memory ==", "== tasks =="}},
	}
	for _, tc := range testCases {
		c := New(&fakeKernel{}, WithLogger(quiet))
		var out bytes.Buffer
		err := c.Exec(context.Background(), tc.line, &out)
		if tc.expectErr {
			assert.Error(t, err, tc.description)
			continue
		}
		require.NoError(t, err, tc.description)
		for _, fragment := range tc.expect {
			assert.Contains(t, out.String(), fragment, tc.description)
		}
	}
}

func TestConsole_Run(t *testing.T) {
	kernel := &fakeKernel{}
	c := New(kernel, WithLogger(quiet), WithPrompt("> "))
	var out bytes.Buffer
	input := strings.NewReader("ticks\nreboot\n\nkill 2\nkill x\n")
	require.NoError(t, c.Run(context.Background(), input, &out))

	text := out.String()
	assert.Contains(t, text, "> ticks: 42\n")
	assert.Contains(t, text, "Error: 'reboot' is not recognized as a command.\n")
	assert.Contains(t, text, "Error: console: invalid arguments: invalid pid \"x\"\n")
	assert.Equal(t, []task.ID{2}, kernel.killed)
	assert.Equal(t, 6, strings.Count(text, "> "))
}

func TestConsole_RunLongLines(t *testing.T) {
	testCases := []struct {
		description string
		input       string
		expect      []string
	}{
		{
			description: "excess after the limit is dropped",
			input:       "ticks" + strings.Repeat(" ", MaxLine-5) + "garbage\nps\n",
			expect:      []string{"ticks: 42\n", "PID"},
		},
		{
			description: "overlong command is reported and reading continues",
			input:       strings.Repeat("x", 3*MaxLine) + "\nticks\n",
			expect:      []string{"is not recognized as a command", "ticks: 42\n"},
		},
		{
			description: "overlong last line without newline",
			input:       "ticks\n" + strings.Repeat("y", 2*MaxLine),
			expect:      []string{"ticks: 42\n", "is not recognized as a command"},
		},
	}
	for _, tc := range testCases {
		c := New(&fakeKernel{}, WithLogger(quiet), WithPrompt("> "))
		var out bytes.Buffer
		require.NoError(t, c.Run(context.Background(), strings.NewReader(tc.input), &out), tc.description)
		for _, expect := range tc.expect {
			assert.Contains(t, out.String(), expect, tc.description)
		}
		assert.NotContains(t, out.String(), "garbage", tc.description)
	}
}

func TestConsole_RunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(&fakeKernel{}, WithLogger(quiet))
	err := c.Run(ctx, strings.NewReader("ticks\n"), io.Discard)
	assert.ErrorIs(t, err, context.Canceled)
}
