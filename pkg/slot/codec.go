package slot

import (
	"bytes"
	"fmt"

	"github.com/flatkv/flatkv/pkg/backend"
)

// WriteSlot frames one keyed record at off. The key may be empty (a free
// slot marker); the value must not be. Each field is written through the
// backend's bounded write in layout order, so a failure part way through can
// leave a torn slot behind; callers treat any error as leaving the chain in
// an unverified state.
func (l Layout) WriteSlot(b backend.Backend, off uint64, key, value []byte) error {
	if b == nil || len(value) == 0 {
		return fmt.Errorf("write slot: nil backend or empty value: %w", ErrBadArg)
	}
	if uint64(len(key)) > l.MaxKeyFieldValue() {
		return fmt.Errorf("write slot: key length %d overflows field: %w", len(key), ErrBadArg)
	}
	if uint64(len(value)) > l.MaxValueFieldValue() {
		return fmt.Errorf("write slot: value length %d overflows field: %w", len(value), ErrBadArg)
	}
	return l.writeSlot(b, off, key, uint64(len(value)), value)
}

// WriteFreeSlot frames a free slot at off with valueLen bytes of reclaimable
// capacity. The capacity bytes themselves are left untouched; only the
// framing is written. A zero capacity is legal here: a split whose remainder
// is exactly the framing overhead still has to be marked, or the chain would
// stop being gapless.
func (l Layout) WriteFreeSlot(b backend.Backend, off uint64, valueLen uint64) error {
	if b == nil {
		return fmt.Errorf("write free slot: nil backend: %w", ErrBadArg)
	}
	if valueLen > l.MaxValueFieldValue() {
		return fmt.Errorf("write free slot: capacity %d overflows field: %w", valueLen, ErrBadArg)
	}
	return l.writeSlot(b, off, nil, valueLen, nil)
}

func (l Layout) writeSlot(b backend.Backend, off uint64, key []byte, valueLen uint64, value []byte) error {
	size := b.Size()
	slotSize := l.SlotSize(uint64(len(key)), valueLen)
	if off+slotSize < off || off+slotSize > size {
		return fmt.Errorf("slot [%d, %d) exceeds backend size %d: %w", off, off+slotSize, size, ErrFailed)
	}

	if err := b.WriteAt(l.Magic, off); err != nil {
		return fmt.Errorf("write magic at %d: %w: %v", off, ErrFailed, err)
	}
	off += l.HeaderSize()

	field := make([]byte, 4)
	putLen(field, l.KeyLenWidth, uint64(len(key)))
	if err := b.WriteAt(field[:l.KeyLenWidth], off); err != nil {
		return fmt.Errorf("write key length at %d: %w: %v", off, ErrFailed, err)
	}
	off += uint64(l.KeyLenWidth)

	if len(key) > 0 {
		if err := b.WriteAt(key, off); err != nil {
			return fmt.Errorf("write key at %d: %w: %v", off, ErrFailed, err)
		}
	}
	off += uint64(len(key))

	putLen(field, l.ValueLenWidth, valueLen)
	if err := b.WriteAt(field[:l.ValueLenWidth], off); err != nil {
		return fmt.Errorf("write value length at %d: %w: %v", off, ErrFailed, err)
	}
	off += uint64(l.ValueLenWidth)

	if len(value) > 0 {
		if err := b.WriteAt(value, off); err != nil {
			return fmt.Errorf("write value at %d: %w: %v", off, ErrFailed, err)
		}
	}
	return nil
}

// ReadSlot decodes the slot at off. A nil key or value buffer skips copying
// that payload, which is how scans probe sizes without materializing bytes;
// the true on-backend lengths are reported either way. A non-nil buffer
// smaller than the stored payload is refused rather than truncated.
//
// A decoded key length of zero denotes a free slot. That is a successful
// decode, not an error.
func (l Layout) ReadSlot(b backend.Backend, off uint64, key, value []byte) (keyLen, valueLen uint64, err error) {
	if b == nil {
		return 0, 0, fmt.Errorf("read slot: nil backend: %w", ErrBadArg)
	}
	size := b.Size()

	if off+l.HeaderSize() > size {
		return 0, 0, fmt.Errorf("header at %d runs past backend size %d: %w", off, size, ErrFailed)
	}
	header := make([]byte, l.HeaderSize())
	if err := b.ReadAt(header, off); err != nil {
		return 0, 0, fmt.Errorf("read header at %d: %w: %v", off, ErrFailed, err)
	}
	if !bytes.Equal(header, l.Magic) {
		return 0, 0, fmt.Errorf("bad magic at %d: %w", off, ErrFailed)
	}
	off += l.HeaderSize()

	field := make([]byte, 4)

	if off+uint64(l.KeyLenWidth) > size {
		return 0, 0, fmt.Errorf("key length at %d runs past backend size %d: %w", off, size, ErrFailed)
	}
	if err := b.ReadAt(field[:l.KeyLenWidth], off); err != nil {
		return 0, 0, fmt.Errorf("read key length at %d: %w: %v", off, ErrFailed, err)
	}
	off += uint64(l.KeyLenWidth)
	keyLen = getLen(field, l.KeyLenWidth)
	if key != nil && keyLen > uint64(len(key)) {
		return keyLen, 0, fmt.Errorf("key of %d bytes exceeds buffer of %d: %w", keyLen, len(key), ErrFailed)
	}
	if off+keyLen > size {
		return keyLen, 0, fmt.Errorf("key at %d runs past backend size %d: %w", off, size, ErrFailed)
	}
	if key != nil && keyLen > 0 {
		if err := b.ReadAt(key[:keyLen], off); err != nil {
			return keyLen, 0, fmt.Errorf("read key at %d: %w: %v", off, ErrFailed, err)
		}
	}
	off += keyLen

	if off+uint64(l.ValueLenWidth) > size {
		return keyLen, 0, fmt.Errorf("value length at %d runs past backend size %d: %w", off, size, ErrFailed)
	}
	if err := b.ReadAt(field[:l.ValueLenWidth], off); err != nil {
		return keyLen, 0, fmt.Errorf("read value length at %d: %w: %v", off, ErrFailed, err)
	}
	off += uint64(l.ValueLenWidth)
	valueLen = getLen(field, l.ValueLenWidth)
	if value != nil && valueLen > uint64(len(value)) {
		return keyLen, valueLen, fmt.Errorf("value of %d bytes exceeds buffer of %d: %w", valueLen, len(value), ErrFailed)
	}
	if off+valueLen > size {
		return keyLen, valueLen, fmt.Errorf("value at %d runs past backend size %d: %w", off, size, ErrFailed)
	}
	if value != nil && valueLen > 0 {
		if err := b.ReadAt(value[:valueLen], off); err != nil {
			return keyLen, valueLen, fmt.Errorf("read value at %d: %w: %v", off, ErrFailed, err)
		}
	}

	return keyLen, valueLen, nil
}
