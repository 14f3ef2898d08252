package paging

import "errors"

var (
	// ErrMisaligned is returned when an address is not aligned to the page
	// size being mapped.
	ErrMisaligned = errors.New("paging: misaligned address")

	// ErrOutOfFrames is returned when no frame is available for a page table
	// or for the page itself.
	ErrOutOfFrames = errors.New("paging: out of physical frames")

	// ErrNotMapped is returned when the address has no present translation.
	ErrNotMapped = errors.New("paging: address not mapped")

	// ErrHugeConflict is returned when a 4KiB mapping would have to descend
	// through a huge-page leaf.
	ErrHugeConflict = errors.New("paging: range covered by a huge page")

	// ErrInvalidSize is returned for unsupported leaf sizes.
	ErrInvalidSize = errors.New("paging: unsupported page size")

	// ErrNotInitialised is returned when the mapper has no root table.
	ErrNotInitialised = errors.New("paging: mapper not initialised")

	// ErrAlreadyInitialised is returned by a second Init.
	ErrAlreadyInitialised = errors.New("paging: mapper already initialised")
)
