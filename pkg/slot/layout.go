// Package slot implements the on-backend framing of one record: a magic
// header, a fixed-width key length, the key bytes, a fixed-width value
// length, and the value bytes. A slot whose key length is zero is a free
// slot; its value bytes are reclaimable capacity.
//
// Length fields are encoded in the writer's native byte order. Images are
// therefore not portable between machines of differing endianness; this is
// an accepted constraint of the format, not something the codec papers over.
package slot

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// DefaultMagic is the per-slot header sentinel. Every slot starts with these
// bytes; a mismatch during decode means corruption or a scan that has run
// past the valid chain.
var DefaultMagic = []byte{0xf8, 0x2a, 0x93, 0x11}

const (
	// DefaultLengthWidth is the default width in bytes of the key-length
	// and value-length fields.
	DefaultLengthWidth = 4

	// DefaultMaxKeySize is the default bound on key length enforced by
	// the store's put and search contracts.
	DefaultMaxKeySize = 16
)

var (
	// ErrBadArg reports a caller contract violation: an invalid layout,
	// a nil or oversized input, a zero-length value on a keyed slot.
	// It never leaves partial backend mutation behind.
	ErrBadArg = errors.New("invalid argument")

	// ErrFailed is the merged failure kind of the slot format: backend
	// I/O errors, magic mismatches, refused truncation, and reads that
	// would run past the backend extent all wrap it. Callers that need
	// to tell these apart must inspect the wrapped cause.
	ErrFailed = errors.New("slot operation failed")
)

// Layout describes the framing parameters of a store. All slots on one
// backend share a single layout; decoding with a different layout than the
// one used to write is indistinguishable from corruption.
type Layout struct {
	// Magic is the header sentinel written before every slot.
	Magic []byte

	// KeyLenWidth and ValueLenWidth are the widths in bytes of the two
	// length fields. Supported widths are 1, 2 and 4.
	KeyLenWidth   int
	ValueLenWidth int

	// MaxKeySize bounds key length on put and search.
	MaxKeySize int
}

// DefaultLayout returns the layout used by freshly created stores: a 4-byte
// magic and 4-byte length fields.
func DefaultLayout() Layout {
	return Layout{
		Magic:         append([]byte(nil), DefaultMagic...),
		KeyLenWidth:   DefaultLengthWidth,
		ValueLenWidth: DefaultLengthWidth,
		MaxKeySize:    DefaultMaxKeySize,
	}
}

// Validate checks the layout parameters.
func (l Layout) Validate() error {
	if len(l.Magic) == 0 {
		return fmt.Errorf("empty magic header: %w", ErrBadArg)
	}
	if !validWidth(l.KeyLenWidth) {
		return fmt.Errorf("unsupported key-length width %d: %w", l.KeyLenWidth, ErrBadArg)
	}
	if !validWidth(l.ValueLenWidth) {
		return fmt.Errorf("unsupported value-length width %d: %w", l.ValueLenWidth, ErrBadArg)
	}
	if l.MaxKeySize < 1 {
		return fmt.Errorf("max key size %d below 1: %w", l.MaxKeySize, ErrBadArg)
	}
	if uint64(l.MaxKeySize) > maxFieldValue(l.KeyLenWidth) {
		return fmt.Errorf("max key size %d does not fit a %d-byte length field: %w",
			l.MaxKeySize, l.KeyLenWidth, ErrBadArg)
	}
	return nil
}

func validWidth(w int) bool {
	return w == 1 || w == 2 || w == 4
}

// HeaderSize is the width of the magic header.
func (l Layout) HeaderSize() uint64 {
	return uint64(len(l.Magic))
}

// SlotSize is the total on-backend size of a slot holding a key of keyLen
// bytes and a value of valueLen bytes.
func (l Layout) SlotSize(keyLen, valueLen uint64) uint64 {
	return l.HeaderSize() + uint64(l.KeyLenWidth) + keyLen + uint64(l.ValueLenWidth) + valueLen
}

// EmptySlotSize is the overhead of a slot with no key and no value bytes,
// the minimum footprint any slot can have.
func (l Layout) EmptySlotSize() uint64 {
	return l.SlotSize(0, 0)
}

// ValueCapacity inverts SlotSize: the value length a slot of slotSize bytes
// can carry alongside a key of keyLen bytes. It fails when the slot is too
// small to hold even the framing.
func (l Layout) ValueCapacity(slotSize, keyLen uint64) (uint64, error) {
	overhead := l.SlotSize(keyLen, 0)
	if slotSize < overhead {
		return 0, fmt.Errorf("slot size %d below framing overhead %d: %w", slotSize, overhead, ErrBadArg)
	}
	return slotSize - overhead, nil
}

// MaxKeyFieldValue and MaxValueFieldValue report the largest length each
// field width can represent.
func (l Layout) MaxKeyFieldValue() uint64   { return maxFieldValue(l.KeyLenWidth) }
func (l Layout) MaxValueFieldValue() uint64 { return maxFieldValue(l.ValueLenWidth) }

func maxFieldValue(width int) uint64 {
	return 1<<(8*uint(width)) - 1
}

// putLen encodes v into a length field of the given width, native byte
// order. The buffer must be at least width bytes.
func putLen(buf []byte, width int, v uint64) {
	switch width {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.NativeEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.NativeEndian.PutUint32(buf, uint32(v))
	}
}

// getLen decodes a length field of the given width, native byte order.
func getLen(buf []byte, width int) uint64 {
	switch width {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(binary.NativeEndian.Uint16(buf))
	case 4:
		return uint64(binary.NativeEndian.Uint32(buf))
	}
	return 0
}
