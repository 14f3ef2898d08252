package console

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/viant/parsly"
	"github.com/viant/valen/model/mem"
	"github.com/viant/valen/service/task"
)

var (
	// ErrUnknownCommand is returned for a command word the console does not
	// recognise.
	ErrUnknownCommand = errors.New("console: unknown command")
	// ErrUsage is returned when a command has the wrong arguments.
	ErrUsage = errors.New("console: invalid arguments")
)

// Name is a console command word.
type Name string

const (
	Help      Name = "help"
	Mem       Name = "mem"
	Ps        Name = "ps"
	Kill      Name = "kill"
	Reap      Name = "reap"
	Translate Name = "translate"
	Ticks     Name = "ticks"
	Dmesg     Name = "dmesg"
	Dump      Name = "dump"
)

type descriptor struct {
	usage       string
	description string
	args        int
}

var commands = map[Name]descriptor{
	Help:      {usage: "help", description: "Display this menu"},
	Mem:       {usage: "mem", description: "Show physical memory utilization"},
	Ps:        {usage: "ps", description: "List tasks"},
	Kill:      {usage: "kill <pid>", description: "Terminate a queued task", args: 1},
	Reap:      {usage: "reap", description: "Reclaim terminated tasks"},
	Translate: {usage: "translate <addr>", description: "Resolve a virtual address", args: 1},
	Ticks:     {usage: "ticks", description: "Show timer ticks since boot"},
	Dmesg:     {usage: "dmesg", description: "Show recent kernel events"},
	Dump:      {usage: "dump", description: "Dump frames, mappings and tasks"},
}

var order = []Name{Help, Mem, Ps, Kill, Reap, Translate, Ticks, Dmesg, Dump}

// Command is a parsed console line.
type Command struct {
	Name Name
	Args []string
	// PID is set for kill.
	PID task.ID
	// Addr is set for translate.
	Addr mem.VirtAddr
}

// Parse parses one console line. An empty line yields a nil command.
func Parse(input []byte) (*Command, error) {
	cursor := parsly.NewCursor("", input, 0)
	cursor.MatchOne(whitespaceToken)
	if cursor.Pos >= cursor.InputSize {
		return nil, nil
	}
	start := cursor.Pos
	matched := cursor.MatchOne(wordToken)
	if matched.Code != wordToken.Code || (cursor.Pos < cursor.InputSize && !isSpace(cursor.Input[cursor.Pos])) {
		word := strings.Fields(string(input[start:]))[0]
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, word)
	}
	name := Name(matched.Text(cursor))
	ret := &Command{Name: name}
	for {
		matched = cursor.MatchAfterOptional(whitespaceToken, argumentToken)
		if matched.Code != argumentToken.Code {
			break
		}
		ret.Args = append(ret.Args, matched.Text(cursor))
	}
	cursor.MatchOne(whitespaceToken)
	if cursor.Pos < cursor.InputSize {
		return nil, cursor.NewError(argumentToken)
	}
	return ret, ret.validate()
}

func (c *Command) validate() error {
	s, ok := commands[c.Name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, c.Name)
	}
	if len(c.Args) != s.args {
		return fmt.Errorf("%w: usage: %s", ErrUsage, s.usage)
	}
	switch c.Name {
	case Kill:
		pid, err := strconv.ParseInt(c.Args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: invalid pid %q", ErrUsage, c.Args[0])
		}
		c.PID = task.ID(pid)
	case Translate:
		text := strings.TrimPrefix(strings.TrimPrefix(c.Args[0], "0x"), "0X")
		addr, err := strconv.ParseUint(text, 16, 64)
		if err != nil {
			return fmt.Errorf("%w: invalid address %q", ErrUsage, c.Args[0])
		}
		c.Addr = mem.VirtAddr(addr)
	}
	return nil
}
