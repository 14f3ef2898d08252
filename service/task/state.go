package task

import "fmt"

// State is the lifecycle state of a task.
type State int

const (
	Running State = iota
	Interruptible
	Uninterruptible
	Zombie
	Stopped
	Traced
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Interruptible:
		return "interruptible"
	case Uninterruptible:
		return "uninterruptible"
	case Zombie:
		return "zombie"
	case Stopped:
		return "stopped"
	case Traced:
		return "traced"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Code returns the single-letter form used in task listings.
func (s State) Code() string {
	switch s {
	case Running:
		return "R"
	case Interruptible:
		return "S"
	case Uninterruptible:
		return "D"
	case Zombie:
		return "Z"
	case Stopped:
		return "T"
	case Traced:
		return "t"
	}
	return "?"
}
