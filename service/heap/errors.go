package heap

import "errors"

var (
	// ErrDoubleFree is returned when a block is released twice.
	ErrDoubleFree = errors.New("heap: double free")
	// ErrUnknownPointer is returned for an address the heap never handed out.
	ErrUnknownPointer = errors.New("heap: unknown pointer")
)
