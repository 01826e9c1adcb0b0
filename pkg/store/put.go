package store

import (
	"fmt"
	"time"

	"github.com/flatkv/flatkv/pkg/stats"
)

// Put stores a key-value pair, reusing free space first-fit. The scan walks
// the chain from offset 0, skipping used slots and free slots too small to
// be split; the first free slot that can hold the record plus a well-formed
// free remainder is split in two. If no fit is found the record is appended
// at the end of the chain, and ErrNoSpace is returned when even that does
// not fit.
//
// First fit, not best fit: an adequate early slot wins over a better-fitting
// later one. Fragmentation from this is not repaired here.
//
// Keys are not unique; putting an existing key adds a second record that a
// resumed SearchNext will find after the first.
func (s *Store) Put(key, value []byte) error {
	start := time.Now()

	if len(key) == 0 || len(value) == 0 {
		return fmt.Errorf("empty key or value: %w", ErrBadArg)
	}
	if len(key) > s.layout.MaxKeySize {
		return fmt.Errorf("key of %d bytes exceeds max %d: %w", len(key), s.layout.MaxKeySize, ErrBadArg)
	}
	if uint64(len(value)) > s.layout.MaxValueFieldValue() {
		return fmt.Errorf("value of %d bytes overflows length field: %w", len(value), ErrBadArg)
	}

	var (
		size     = s.backend.Size()
		need     = s.layout.SlotSize(uint64(len(key)), uint64(len(value)))
		overhead = s.layout.EmptySlotSize()
		pos      = uint64(0)
		scanned  = uint64(0)
	)

	for pos < size {
		keyLen, valueLen, err := s.layout.ReadSlot(s.backend, pos, nil, nil)
		if err != nil {
			s.trackError("put")
			s.metrics.RecordOperation("put", time.Since(start), false)
			return fmt.Errorf("scan at %d: %w", pos, err)
		}
		scanned++
		have := s.layout.SlotSize(keyLen, valueLen)

		// Used slot, or a free slot too small to hold the record and
		// still leave a marked remainder.
		if keyLen > 0 || have < need+overhead {
			pos += have
			continue
		}

		if err := s.writeSplit(pos, have, need, key, value); err != nil {
			s.trackError("put")
			s.metrics.RecordOperation("put", time.Since(start), false)
			return err
		}
		s.trackScanned("put", scanned)
		s.trackBytes(true, need)
		s.track(stats.OpPut, start)
		s.metrics.RecordOperation("put", time.Since(start), true)
		return nil
	}

	// No fitting free slot; try to grow the chain past its current end.
	if err := s.layout.WriteSlot(s.backend, pos, key, value); err != nil {
		s.trackError("put")
		s.metrics.RecordOperation("put", time.Since(start), false)
		s.logger.Debug("put exhausted: %d slots scanned, %d bytes needed", scanned, need)
		return fmt.Errorf("store exhausted: %w", ErrNoSpace)
	}

	s.trackScanned("put", scanned)
	s.trackBytes(true, need)
	s.track(stats.OpPut, start)
	s.metrics.RecordOperation("put", time.Since(start), true)
	return nil
}

// writeSplit writes the keyed record into the chosen free slot of size have
// and marks the remainder as a fresh free slot, keeping the chain gapless.
func (s *Store) writeSplit(pos, have, need uint64, key, value []byte) error {
	if err := s.layout.WriteSlot(s.backend, pos, key, value); err != nil {
		return fmt.Errorf("write record at %d: %w", pos, err)
	}

	remainder := have - need
	capacity, err := s.layout.ValueCapacity(remainder, 0)
	if err != nil {
		return fmt.Errorf("split remainder of %d at %d: %w", remainder, pos+need, err)
	}
	if err := s.layout.WriteFreeSlot(s.backend, pos+need, capacity); err != nil {
		return fmt.Errorf("write remainder at %d: %w", pos+need, err)
	}

	s.logger.Debug("put at %d: slot %d bytes, remainder %d", pos, need, remainder)
	return nil
}
