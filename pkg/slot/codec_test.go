package slot

import (
	"bytes"
	"errors"
	"testing"

	"github.com/flatkv/flatkv/pkg/backend"
)

func TestWriteReadRoundTrip(t *testing.T) {
	l := DefaultLayout()
	b := backend.NewMemory(128)

	key := []byte("sensor/1")
	value := []byte("23.5C")
	if err := l.WriteSlot(b, 0, key, value); err != nil {
		t.Fatalf("Failed to write slot: %v", err)
	}

	keyBuf := make([]byte, 16)
	valueBuf := make([]byte, 16)
	keyLen, valueLen, err := l.ReadSlot(b, 0, keyBuf, valueBuf)
	if err != nil {
		t.Fatalf("Failed to read slot: %v", err)
	}

	if !bytes.Equal(keyBuf[:keyLen], key) {
		t.Errorf("Expected key %q, got %q", key, keyBuf[:keyLen])
	}
	if !bytes.Equal(valueBuf[:valueLen], value) {
		t.Errorf("Expected value %q, got %q", value, valueBuf[:valueLen])
	}
}

func TestLengthOnlyProbe(t *testing.T) {
	l := DefaultLayout()
	b := backend.NewMemory(128)

	if err := l.WriteSlot(b, 0, []byte("key"), []byte("a longer value")); err != nil {
		t.Fatalf("Failed to write slot: %v", err)
	}

	// Nil buffers skip payload copies but still report true lengths.
	keyLen, valueLen, err := l.ReadSlot(b, 0, nil, nil)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if keyLen != 3 {
		t.Errorf("Expected key length 3, got %d", keyLen)
	}
	if valueLen != 14 {
		t.Errorf("Expected value length 14, got %d", valueLen)
	}
}

func TestTruncationRefused(t *testing.T) {
	l := DefaultLayout()
	b := backend.NewMemory(128)

	if err := l.WriteSlot(b, 0, []byte("key"), []byte("0123456789")); err != nil {
		t.Fatalf("Failed to write slot: %v", err)
	}

	// A too-small buffer is refused, and the true length is still reported.
	small := make([]byte, 4)
	_, valueLen, err := l.ReadSlot(b, 0, nil, small)
	if !errors.Is(err, ErrFailed) {
		t.Fatalf("Expected ErrFailed for short buffer, got %v", err)
	}
	if valueLen != 10 {
		t.Errorf("Expected reported value length 10, got %d", valueLen)
	}

	shortKey := make([]byte, 2)
	if _, _, err := l.ReadSlot(b, 0, shortKey, nil); !errors.Is(err, ErrFailed) {
		t.Errorf("Expected ErrFailed for short key buffer, got %v", err)
	}
}

func TestFreeSlotDecode(t *testing.T) {
	l := DefaultLayout()
	b := backend.NewMemory(64)

	if err := l.WriteFreeSlot(b, 0, 20); err != nil {
		t.Fatalf("Failed to write free slot: %v", err)
	}

	keyLen, valueLen, err := l.ReadSlot(b, 0, nil, nil)
	if err != nil {
		t.Fatalf("Free slot must decode cleanly, got %v", err)
	}
	if keyLen != 0 {
		t.Errorf("Free slot should have key length 0, got %d", keyLen)
	}
	if valueLen != 20 {
		t.Errorf("Expected capacity 20, got %d", valueLen)
	}
}

func TestZeroCapacityFreeSlot(t *testing.T) {
	l := DefaultLayout()
	b := backend.NewMemory(uint64(l.EmptySlotSize()))

	if err := l.WriteFreeSlot(b, 0, 0); err != nil {
		t.Fatalf("Zero-capacity free slot must be writable, got %v", err)
	}

	keyLen, valueLen, err := l.ReadSlot(b, 0, nil, nil)
	if err != nil {
		t.Fatalf("Zero-capacity free slot must decode, got %v", err)
	}
	if keyLen != 0 || valueLen != 0 {
		t.Errorf("Expected (0, 0), got (%d, %d)", keyLen, valueLen)
	}
}

func TestBadMagicRejected(t *testing.T) {
	l := DefaultLayout()
	b := backend.NewMemory(64)

	if err := l.WriteSlot(b, 0, []byte("k"), []byte("v")); err != nil {
		t.Fatalf("Failed to write slot: %v", err)
	}

	// Corrupt the first magic byte.
	if err := b.WriteAt([]byte{0x00}, 0); err != nil {
		t.Fatalf("Failed to corrupt: %v", err)
	}

	if _, _, err := l.ReadSlot(b, 0, nil, nil); !errors.Is(err, ErrFailed) {
		t.Errorf("Expected ErrFailed for bad magic, got %v", err)
	}
}

func TestWriteBeyondCapacity(t *testing.T) {
	l := DefaultLayout()
	b := backend.NewMemory(16)

	// Slot needs 12 bytes framing + 3 key + 5 value = 20 > 16.
	err := l.WriteSlot(b, 0, []byte("key"), []byte("value"))
	if !errors.Is(err, ErrFailed) {
		t.Errorf("Expected ErrFailed for oversized slot, got %v", err)
	}

	// Nothing else should have been disturbed: no magic was written.
	if _, _, err := l.ReadSlot(b, 0, nil, nil); !errors.Is(err, ErrFailed) {
		t.Errorf("Expected unreadable slot on untouched backend, got %v", err)
	}
}

func TestReadPastEnd(t *testing.T) {
	l := DefaultLayout()
	b := backend.NewMemory(32)

	if _, _, err := l.ReadSlot(b, 30, nil, nil); !errors.Is(err, ErrFailed) {
		t.Errorf("Expected ErrFailed reading header past end, got %v", err)
	}
	if _, _, err := l.ReadSlot(b, 32, nil, nil); !errors.Is(err, ErrFailed) {
		t.Errorf("Expected ErrFailed reading at end, got %v", err)
	}
}

func TestEmptyValueRejected(t *testing.T) {
	l := DefaultLayout()
	b := backend.NewMemory(64)

	if err := l.WriteSlot(b, 0, []byte("key"), nil); !errors.Is(err, ErrBadArg) {
		t.Errorf("Expected ErrBadArg for empty value, got %v", err)
	}
}

func TestNarrowWidthRoundTrip(t *testing.T) {
	l := Layout{
		Magic:         []byte{0xCA, 0xFE},
		KeyLenWidth:   1,
		ValueLenWidth: 2,
		MaxKeySize:    8,
	}
	b := backend.NewMemory(64)

	key := []byte("k1")
	value := []byte("narrow fields")
	if err := l.WriteSlot(b, 5, key, value); err != nil {
		t.Fatalf("Failed to write slot: %v", err)
	}

	keyBuf := make([]byte, 8)
	valueBuf := make([]byte, 32)
	keyLen, valueLen, err := l.ReadSlot(b, 5, keyBuf, valueBuf)
	if err != nil {
		t.Fatalf("Failed to read slot: %v", err)
	}
	if !bytes.Equal(keyBuf[:keyLen], key) || !bytes.Equal(valueBuf[:valueLen], value) {
		t.Errorf("Round trip mismatch: key %q value %q", keyBuf[:keyLen], valueBuf[:valueLen])
	}
}
