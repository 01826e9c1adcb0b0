// Package backend defines the byte-addressable storage contract the slot
// store runs over, plus reference implementations for RAM and file regions.
//
// A Backend is a flat address space of fixed size. The store never owns the
// backend; the caller creates it, hands it to the store, and remains
// responsible for its lifecycle.
package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned when a read or write would cross the end
	// of the backend's address space.
	ErrOutOfRange = errors.New("access beyond backend size")

	// ErrReadOnly is returned by writes against a read-only backend.
	ErrReadOnly = errors.New("backend is read-only")
)

// Backend is the three-operation storage contract: bounded read, bounded
// write, and total size. Offsets are absolute byte positions within a single
// flat address space of Size() bytes. Reads and writes never partially
// succeed from the caller's point of view: either the full range is
// transferred or an error is returned.
type Backend interface {
	// ReadAt fills p with len(p) bytes starting at off.
	ReadAt(p []byte, off uint64) error

	// WriteAt stores len(p) bytes starting at off.
	WriteAt(p []byte, off uint64) error

	// Size reports the total extent of the address space in bytes.
	Size() uint64
}

// checkRange validates that [off, off+n) lies within a backend of the given
// size, guarding against overflow on off+n.
func checkRange(off uint64, n int, size uint64) error {
	end := off + uint64(n)
	if end < off || end > size {
		return fmt.Errorf("range [%d, %d) exceeds size %d: %w", off, end, size, ErrOutOfRange)
	}
	return nil
}
