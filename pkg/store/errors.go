package store

import (
	"errors"

	"github.com/flatkv/flatkv/pkg/slot"
)

// The store keeps the original format's four-way result taxonomy:
// success, BadArg, Failed, NotFound.
//
// ErrFailed deliberately merges backend I/O failure, framing corruption and
// scanning past the end of the valid chain into one kind; the on-backend
// format gives no way to tell a truncated chain from a corrupt one, and
// splitting the kinds here would invent semantics the format cannot back.
// Note the asymmetry inherited from the format: Put reports space
// exhaustion as ErrNoSpace while SearchNext reports chain exhaustion (a key
// that is not there) as ErrFailed.
var (
	// ErrBadArg reports a caller contract violation. Nothing has been
	// written when it is returned.
	ErrBadArg = slot.ErrBadArg

	// ErrFailed is the merged failure kind; see the package note above.
	// A failed Put may have mutated the backend; callers must treat the
	// store as unverified until a successful Verify.
	ErrFailed = slot.ErrFailed

	// ErrNoSpace is returned by Put when no free slot fits the record
	// and there is no trailing capacity to append into. It corresponds
	// to the original format's NOT_FOUND result.
	ErrNoSpace = errors.New("no slot found for record")
)
