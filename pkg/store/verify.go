package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/flatkv/flatkv/pkg/stats"
)

// VerifyResult summarizes a full walk of the slot chain.
type VerifyResult struct {
	// Slots is the total number of slots in the chain, used and free.
	Slots int
	// Used and Free count the keyed and free slots.
	Used int
	Free int
	// UsedBytes and FreeBytes are full slot footprints, framing included.
	UsedBytes uint64
	FreeBytes uint64
	// Fingerprint is an xxhash64 digest over the keys and values of all
	// used slots in offset order. Two stores holding the same records in
	// the same layout produce the same fingerprint.
	Fingerprint uint64
}

// Verify walks the whole chain from offset 0, decoding every slot and
// checking the contiguity invariant: back-to-back slots whose total size
// equals the backend extent. Any decode failure or a chain that stops short
// of (or would run past) the extent is reported as ErrFailed.
func (s *Store) Verify() (*VerifyResult, error) {
	start := time.Now()

	var (
		res    VerifyResult
		size   = s.backend.Size()
		pos    = uint64(0)
		digest = xxhash.New()
	)

	for pos < size {
		keyLen, valueLen, err := s.layout.ReadSlot(s.backend, pos, nil, nil)
		if err != nil {
			s.trackError("verify")
			return nil, fmt.Errorf("verify at %d: %w", pos, err)
		}

		res.Slots++
		slotSize := s.layout.SlotSize(keyLen, valueLen)
		if keyLen > 0 {
			res.Used++
			res.UsedBytes += slotSize
			if err := s.hashSlot(digest, pos, keyLen, valueLen); err != nil {
				s.trackError("verify")
				return nil, err
			}
		} else {
			res.Free++
			res.FreeBytes += slotSize
		}
		pos += slotSize
	}

	if pos != size {
		s.trackError("verify")
		return nil, fmt.Errorf("chain ends at %d, backend size is %d: %w", pos, size, ErrFailed)
	}

	res.Fingerprint = digest.Sum64()
	s.track(stats.OpVerify, start)
	s.logger.Debug("verified chain: %d slots, %d used, %d free", res.Slots, res.Used, res.Free)
	return &res, nil
}

func (s *Store) hashSlot(digest *xxhash.Digest, pos, keyLen, valueLen uint64) error {
	key := make([]byte, keyLen)
	value := make([]byte, valueLen)
	if _, _, err := s.layout.ReadSlot(s.backend, pos, key, value); err != nil {
		return fmt.Errorf("verify payload at %d: %w", pos, err)
	}
	digest.Write(key)
	digest.Write(value)
	return nil
}

// Scan calls fn for every used record in offset order, with buffers that are
// only valid for the duration of the call. Returning an error from fn stops
// the walk and propagates the error. The walk ends when the cursor steps
// past the last valid slot.
func (s *Store) Scan(fn func(key, value []byte) error) error {
	start := time.Now()
	if fn == nil {
		return fmt.Errorf("nil scan callback: %w", ErrBadArg)
	}

	var c Cursor
	for {
		keyLen, valueLen, err := s.layout.ReadSlot(s.backend, c.pos, nil, nil)
		if err != nil {
			// The same decode failure ends both a clean walk off the
			// chain and a walk into corruption; a clean end is one
			// that stopped exactly at the backend boundary.
			if c.pos == s.backend.Size() {
				s.track(stats.OpScan, start)
				return nil
			}
			s.trackError("scan")
			return fmt.Errorf("scan at %d: %w", c.pos, err)
		}

		if keyLen > 0 {
			key := make([]byte, keyLen)
			value := make([]byte, valueLen)
			if _, _, err := s.layout.ReadSlot(s.backend, c.pos, key, value); err != nil {
				s.trackError("scan")
				return fmt.Errorf("scan payload at %d: %w", c.pos, err)
			}
			if err := fn(key, value); err != nil {
				return err
			}
		}

		c.pos += s.layout.SlotSize(keyLen, valueLen)
	}
}

// IsExhausted reports whether err is the merged failure kind rather than a
// caller contract violation, i.e. the scan ran off the valid chain or hit
// corruption or backend I/O failure. The format cannot tell these apart.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrFailed)
}
