package store

import (
	"bytes"
	"fmt"
	"time"

	"github.com/flatkv/flatkv/pkg/stats"
)

// Cursor is a caller-owned scan position in the slot chain, plus the search
// key when the cursor came from Search. It is a plain value: copy it, reuse
// it, discard it. A cursor is only meaningful against the chain state it was
// positioned on; a Put can move records underneath it undetected.
type Cursor struct {
	pos     uint64
	key     []byte
	matched bool
}

// Position returns the cursor's current byte offset in the backend.
func (c *Cursor) Position() uint64 {
	return c.pos
}

// Search positions the cursor on the first slot whose key exactly matches
// key, scanning from offset 0. On success the cursor is safe to Get/GetKV;
// a key that is nowhere in the chain surfaces as ErrFailed when the scan
// runs off the end of the valid chain (the format does not distinguish the
// two; see the errors package note).
func (s *Store) Search(c *Cursor, key []byte) error {
	if c == nil || len(key) == 0 {
		return fmt.Errorf("nil cursor or empty key: %w", ErrBadArg)
	}
	if len(key) > s.layout.MaxKeySize {
		return fmt.Errorf("key of %d bytes exceeds max %d: %w", len(key), s.layout.MaxKeySize, ErrBadArg)
	}

	c.pos = 0
	c.key = append(c.key[:0], key...)
	c.matched = false

	if s.stats != nil {
		s.stats.TrackOperation(stats.OpSearch)
	}
	return s.SearchNext(c)
}

// SearchNext resumes the scan from the cursor's current position, looking
// for the next slot matching the cursor's key. After a match, a further
// SearchNext moves past the matched slot first, so repeated calls step
// through every record sharing the key (keys are not unique).
func (s *Store) SearchNext(c *Cursor) error {
	start := time.Now()
	if c == nil {
		return fmt.Errorf("nil cursor: %w", ErrBadArg)
	}

	keyBuf := make([]byte, s.layout.MaxKeySize)
	scanned := uint64(0)
	skipCurrent := c.matched
	c.matched = false
	for {
		keyLen, valueLen, err := s.layout.ReadSlot(s.backend, c.pos, keyBuf, nil)
		if err != nil {
			s.trackError("search_next")
			s.metrics.RecordOperation("search_next", time.Since(start), false)
			return fmt.Errorf("search at %d: %w", c.pos, err)
		}
		scanned++

		if skipCurrent {
			skipCurrent = false
			c.pos += s.layout.SlotSize(keyLen, valueLen)
			continue
		}

		// Free slots have key length 0 and never match a search key.
		if keyLen != uint64(len(c.key)) || !bytes.Equal(keyBuf[:keyLen], c.key) {
			c.pos += s.layout.SlotSize(keyLen, valueLen)
			continue
		}

		c.matched = true
		s.trackScanned("search_next", scanned)
		s.track(stats.OpSearchNext, start)
		s.metrics.RecordOperation("search_next", time.Since(start), true)
		return nil
	}
}

// Advance moves the cursor past the slot it is positioned on, free or used.
// Repeated Advance plus GetKV walks every slot in offset order; the walk
// ends with ErrFailed when the cursor moves past the last valid slot.
func (s *Store) Advance(c *Cursor) error {
	if c == nil {
		return fmt.Errorf("nil cursor: %w", ErrBadArg)
	}

	keyLen, valueLen, err := s.layout.ReadSlot(s.backend, c.pos, nil, nil)
	if err != nil {
		s.trackError("advance")
		return fmt.Errorf("advance at %d: %w", c.pos, err)
	}

	c.pos += s.layout.SlotSize(keyLen, valueLen)
	c.matched = false
	if s.stats != nil {
		s.stats.TrackOperation(stats.OpAdvance)
	}
	return nil
}

// Get copies the value of the slot at the cursor into value and returns its
// length. The buffer must be at least as large as the stored value;
// truncation is refused with ErrFailed.
func (s *Store) Get(c *Cursor, value []byte) (int, error) {
	start := time.Now()
	if c == nil || len(value) == 0 {
		return 0, fmt.Errorf("nil cursor or empty value buffer: %w", ErrBadArg)
	}

	_, valueLen, err := s.layout.ReadSlot(s.backend, c.pos, nil, value)
	if err != nil {
		s.trackError("get")
		s.metrics.RecordOperation("get", time.Since(start), false)
		return 0, fmt.Errorf("get at %d: %w", c.pos, err)
	}

	s.trackBytes(false, valueLen)
	s.track(stats.OpGet, start)
	s.metrics.RecordOperation("get", time.Since(start), true)
	return int(valueLen), nil
}

// GetKV copies the key and value of the slot at the cursor into the given
// buffers and returns both lengths. Either buffer may be nil to probe the
// stored sizes without copying, so callers can allocate exact-size buffers
// before a second call.
func (s *Store) GetKV(c *Cursor, key, value []byte) (int, int, error) {
	start := time.Now()
	if c == nil {
		return 0, 0, fmt.Errorf("nil cursor: %w", ErrBadArg)
	}

	keyLen, valueLen, err := s.layout.ReadSlot(s.backend, c.pos, key, value)
	if err != nil {
		s.trackError("get_kv")
		s.metrics.RecordOperation("get_kv", time.Since(start), false)
		return int(keyLen), int(valueLen), fmt.Errorf("get_kv at %d: %w", c.pos, err)
	}

	s.trackBytes(false, keyLen+valueLen)
	s.track(stats.OpGetKV, start)
	s.metrics.RecordOperation("get_kv", time.Since(start), true)
	return int(keyLen), int(valueLen), nil
}
