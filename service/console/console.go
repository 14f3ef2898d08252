package console

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/viant/valen/model/mem"
	"github.com/viant/valen/service/dump"
	"github.com/viant/valen/service/event"
	"github.com/viant/valen/service/frame"
	"github.com/viant/valen/service/task"
)

const (
	// DefaultPrompt is printed before every line read by Run.
	DefaultPrompt = "valen >> "
	// MaxLine is the longest input line in bytes; Run drops the excess.
	MaxLine = 256
)

// Kernel is the kernel surface the console drives.
type Kernel interface {
	MemoryStats() frame.Stats
	Processes() []dump.Process
	Kill(id task.ID) error
	Reap() int
	Translate(virt mem.VirtAddr) (mem.PhysAddr, bool)
	Ticks() uint64
	Events(ctx context.Context) ([]*event.Event[any], error)
	Dump() (*dump.Dump, error)
}

// Console executes operator commands against a kernel.
type Console struct {
	kernel Kernel
	prompt string
	logger *slog.Logger
}

// Option customises a Console.
type Option func(c *Console)

// WithPrompt replaces the default prompt.
func WithPrompt(prompt string) Option {
	return func(c *Console) {
		c.prompt = prompt
	}
}

// WithLogger sets the console logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Console) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a console bound to kernel.
func New(kernel Kernel, options ...Option) *Console {
	ret := &Console{kernel: kernel, prompt: DefaultPrompt, logger: slog.Default()}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Run reads commands from r until it is exhausted or ctx is done, writing
// results to w. Command errors are reported on w and do not stop the loop.
func (c *Console) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, MaxLine), MaxLine)
	scanner.Split(truncatedLines(MaxLine))
	for {
		if _, err := io.WriteString(w, c.prompt); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !scanner.Scan() {
			_, _ = io.WriteString(w, "\n")
			return scanner.Err()
		}
		if err := c.Exec(ctx, scanner.Text(), w); err != nil {
			c.report(w, err)
		}
	}
}

// truncatedLines splits input into lines keeping at most limit bytes of
// each; the rest of an overlong line is discarded.
func truncatedLines(limit int) bufio.SplitFunc {
	discarding := false
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			if discarding {
				discarding = false
				return i + 1, nil, nil
			}
			return i + 1, trimLine(data[:i], limit), nil
		}
		switch {
		case discarding:
			return len(data), nil, nil
		case len(data) >= limit:
			discarding = true
			return len(data), trimLine(data, limit), nil
		case atEOF && len(data) > 0:
			return len(data), trimLine(data, limit), nil
		}
		return 0, nil, nil
	}
}

func trimLine(line []byte, limit int) []byte {
	if len(line) > limit {
		line = line[:limit]
	}
	return bytes.TrimSuffix(line, []byte{'\r'})
}

// Exec parses and executes one line.
func (c *Console) Exec(ctx context.Context, line string, w io.Writer) error {
	cmd, err := Parse([]byte(line))
	if err != nil || cmd == nil {
		return err
	}
	c.logger.Debug("console command", "command", cmd.Name, "args", cmd.Args)
	return c.Execute(ctx, cmd, w)
}

// Execute runs a parsed command.
func (c *Console) Execute(ctx context.Context, cmd *Command, w io.Writer) error {
	switch cmd.Name {
	case Help:
		return writeHelp(w)
	case Mem:
		s := c.kernel.MemoryStats()
		_, err := fmt.Fprintf(w, "--- Physical Memory Mapping ---\n  Total: %d KB\n  Used:  %d KB\n  Free:  %d KB\n-------------------------------\n",
			s.TotalKB(), s.UsedKB(), s.FreeKB())
		return err
	case Ps:
		return dump.WriteProcesses(w, c.kernel.Processes())
	case Kill:
		if err := c.kernel.Kill(cmd.PID); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "killed task %d\n", cmd.PID)
		return err
	case Reap:
		_, err := fmt.Fprintf(w, "reaped %d tasks\n", c.kernel.Reap())
		return err
	case Translate:
		phys, ok := c.kernel.Translate(cmd.Addr)
		if !ok {
			_, err := fmt.Fprintf(w, "%v: not mapped\n", cmd.Addr)
			return err
		}
		_, err := fmt.Fprintf(w, "%v -> %v\n", cmd.Addr, phys)
		return err
	case Ticks:
		_, err := fmt.Fprintf(w, "ticks: %d\n", c.kernel.Ticks())
		return err
	case Dmesg:
		events, err := c.kernel.Events(ctx)
		if err != nil {
			return err
		}
		for _, e := range events {
			if _, err = fmt.Fprintln(w, e.String()); err != nil {
				return err
			}
		}
		return nil
	case Dump:
		d, err := c.kernel.Dump()
		if err != nil {
			return err
		}
		_, err = d.WriteTo(w)
		return err
	}
	return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Name)
}

func (c *Console) report(w io.Writer, err error) {
	if errors.Is(err, ErrUnknownCommand) {
		word := strings.TrimPrefix(err.Error(), ErrUnknownCommand.Error()+": ")
		_, _ = fmt.Fprintf(w, "Error: '%s' is not recognized as a command.\n", word)
		return
	}
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
}

func writeHelp(w io.Writer) error {
	var sb strings.Builder
	sb.WriteString("--- Valen Command Interface ---\n")
	for _, name := range order {
		s := commands[name]
		fmt.Fprintf(&sb, "  %-16s - %s\n", s.usage, s.description)
	}
	sb.WriteString("-------------------------------\n")
	_, err := io.WriteString(w, sb.String())
	return err
}
