package store

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/flatkv/flatkv/pkg/backend"
	"github.com/flatkv/flatkv/pkg/common/log"
	"github.com/flatkv/flatkv/pkg/slot"
	"github.com/flatkv/flatkv/pkg/stats"
)

func newTestStore(t *testing.T, size uint64, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithLogger(log.NewNopLogger())}, opts...)
	s, err := New(backend.NewMemory(size), opts...)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := s.Prepare(); err != nil {
		t.Fatalf("Failed to prepare store: %v", err)
	}
	return s
}

func mustPut(t *testing.T, s *Store, key, value string) {
	t.Helper()
	if err := s.Put([]byte(key), []byte(value)); err != nil {
		t.Fatalf("Failed to put %q: %v", key, err)
	}
}

func lookup(t *testing.T, s *Store, key string) (string, string) {
	t.Helper()
	var c Cursor
	if err := s.Search(&c, []byte(key)); err != nil {
		t.Fatalf("Failed to search %q: %v", key, err)
	}
	keyLen, valueLen, err := s.GetKV(&c, nil, nil)
	if err != nil {
		t.Fatalf("Failed to probe sizes for %q: %v", key, err)
	}
	keyBuf := make([]byte, keyLen)
	valueBuf := make([]byte, valueLen)
	if _, _, err := s.GetKV(&c, keyBuf, valueBuf); err != nil {
		t.Fatalf("Failed to read record for %q: %v", key, err)
	}
	return string(keyBuf), string(valueBuf)
}

func TestPrepareCoversBackend(t *testing.T) {
	s := newTestStore(t, 64)

	keyLen, valueLen, err := s.Layout().ReadSlot(s.Backend(), 0, nil, nil)
	if err != nil {
		t.Fatalf("Prepared slot must decode, got %v", err)
	}
	if keyLen != 0 {
		t.Errorf("Prepared slot must be free, got key length %d", keyLen)
	}
	if got := s.Layout().SlotSize(keyLen, valueLen); got != 64 {
		t.Errorf("Prepared slot must span the backend: got %d, want 64", got)
	}
}

func TestPrepareTinyBackend(t *testing.T) {
	s, err := New(backend.NewMemory(4), WithLogger(log.NewNopLogger()))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := s.Prepare(); !errors.Is(err, ErrBadArg) {
		t.Errorf("Expected ErrBadArg preparing a 4-byte backend, got %v", err)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t, 256)

	records := map[string]string{
		"a":        "1",
		"sensor":   "23.5",
		"emptyish": "x",
	}
	for k, v := range records {
		mustPut(t, s, k, v)
	}

	for k, v := range records {
		gotKey, gotValue := lookup(t, s, k)
		if gotKey != k || gotValue != v {
			t.Errorf("Round trip mismatch: got (%q, %q), want (%q, %q)", gotKey, gotValue, k, v)
		}
	}
}

// The worked scenario from the format documentation: a 64-byte backend holds
// (a, 1) and (bb, 22), and a third record no longer fits.
func TestSmallBackendScenario(t *testing.T) {
	s := newTestStore(t, 64)

	mustPut(t, s, "a", "1")
	mustPut(t, s, "bb", "22")

	if k, v := lookup(t, s, "a"); k != "a" || v != "1" {
		t.Errorf("Expected (a, 1), got (%q, %q)", k, v)
	}
	if k, v := lookup(t, s, "bb"); k != "bb" || v != "22" {
		t.Errorf("Expected (bb, 22), got (%q, %q)", k, v)
	}

	err := s.Put([]byte("ccc"), []byte("0123456789"))
	if !errors.Is(err, ErrNoSpace) {
		t.Errorf("Expected ErrNoSpace for a record too large, got %v", err)
	}
}

func TestPutBadArgs(t *testing.T) {
	s := newTestStore(t, 128)

	if err := s.Put(nil, []byte("v")); !errors.Is(err, ErrBadArg) {
		t.Errorf("Expected ErrBadArg for nil key, got %v", err)
	}
	if err := s.Put([]byte("k"), nil); !errors.Is(err, ErrBadArg) {
		t.Errorf("Expected ErrBadArg for nil value, got %v", err)
	}

	long := bytes.Repeat([]byte("k"), s.Layout().MaxKeySize+1)
	if err := s.Put(long, []byte("v")); !errors.Is(err, ErrBadArg) {
		t.Errorf("Expected ErrBadArg for oversized key, got %v", err)
	}

	// Nothing may have been written by rejected calls.
	res, err := s.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if res.Used != 0 {
		t.Errorf("Expected untouched store, found %d used slots", res.Used)
	}
}

func TestFirstFitSkipsSmallFreeSlot(t *testing.T) {
	l := slot.DefaultLayout()
	b := backend.NewMemory(100)

	// Hand-build a chain: used(14) free(12) used(14) free(60).
	if err := l.WriteSlot(b, 0, []byte("x"), []byte("v")); err != nil {
		t.Fatalf("build chain: %v", err)
	}
	if err := l.WriteFreeSlot(b, 14, 0); err != nil {
		t.Fatalf("build chain: %v", err)
	}
	if err := l.WriteSlot(b, 26, []byte("y"), []byte("w")); err != nil {
		t.Fatalf("build chain: %v", err)
	}
	if err := l.WriteFreeSlot(b, 40, 48); err != nil {
		t.Fatalf("build chain: %v", err)
	}

	s, err := New(b, WithLogger(log.NewNopLogger()))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	// Needs 16 bytes; the 12-byte free slot cannot hold it, the 60-byte
	// one can. First fit lands it at offset 40.
	mustPut(t, s, "k", "val")

	var c Cursor
	if err := s.Search(&c, []byte("k")); err != nil {
		t.Fatalf("Failed to find new record: %v", err)
	}
	if c.Position() != 40 {
		t.Errorf("Expected first-fit offset 40, got %d", c.Position())
	}

	// Split correctness: remainder at 56 is a well-formed free slot
	// covering the rest of the chain.
	keyLen, valueLen, err := l.ReadSlot(b, 56, nil, nil)
	if err != nil {
		t.Fatalf("Remainder slot must decode, got %v", err)
	}
	if keyLen != 0 {
		t.Errorf("Remainder must be free, got key length %d", keyLen)
	}
	if got := l.SlotSize(keyLen, valueLen); got != 44 {
		t.Errorf("Remainder slot size = %d, want 44", got)
	}
}

func TestPutExactSplitLeavesZeroCapacityRemainder(t *testing.T) {
	// Backend sized so the record plus an empty remainder slot fits
	// exactly: 14 (record) + 12 (empty slot) = 26.
	s := newTestStore(t, 26)

	mustPut(t, s, "a", "1")

	keyLen, valueLen, err := s.Layout().ReadSlot(s.Backend(), 14, nil, nil)
	if err != nil {
		t.Fatalf("Zero-capacity remainder must decode, got %v", err)
	}
	if keyLen != 0 || valueLen != 0 {
		t.Errorf("Expected empty free remainder, got (%d, %d)", keyLen, valueLen)
	}

	if _, err := s.Verify(); err != nil {
		t.Errorf("Chain must stay contiguous after exact split: %v", err)
	}
}

func TestSearchMissReportsFailed(t *testing.T) {
	s := newTestStore(t, 128)
	mustPut(t, s, "present", "v")

	var c Cursor
	err := s.Search(&c, []byte("absent"))
	if !errors.Is(err, ErrFailed) {
		t.Errorf("Expected ErrFailed for a missing key, got %v", err)
	}
}

func TestSearchNextFindsDuplicates(t *testing.T) {
	s := newTestStore(t, 256)

	mustPut(t, s, "dup", "first")
	mustPut(t, s, "other", "x")
	mustPut(t, s, "dup", "second")

	var c Cursor
	if err := s.Search(&c, []byte("dup")); err != nil {
		t.Fatalf("Failed to find first duplicate: %v", err)
	}
	value := make([]byte, 32)
	n, err := s.Get(&c, value)
	if err != nil {
		t.Fatalf("Failed to read first duplicate: %v", err)
	}
	if string(value[:n]) != "first" {
		t.Errorf("Expected first duplicate, got %q", value[:n])
	}

	if err := s.SearchNext(&c); err != nil {
		t.Fatalf("Failed to find second duplicate: %v", err)
	}
	n, err = s.Get(&c, value)
	if err != nil {
		t.Fatalf("Failed to read second duplicate: %v", err)
	}
	if string(value[:n]) != "second" {
		t.Errorf("Expected second duplicate, got %q", value[:n])
	}

	// No third record with this key: the scan runs off the chain.
	if err := s.SearchNext(&c); !errors.Is(err, ErrFailed) {
		t.Errorf("Expected ErrFailed past the last duplicate, got %v", err)
	}
}

func TestAdvanceWalksAllSlots(t *testing.T) {
	s := newTestStore(t, 128)
	mustPut(t, s, "a", "1")
	mustPut(t, s, "b", "2")

	// Walk the chain: used, used, free, then off the end.
	var c Cursor
	var keyLens []int
	for {
		keyLen, _, err := s.GetKV(&c, nil, nil)
		if err != nil {
			break
		}
		keyLens = append(keyLens, keyLen)
		if err := s.Advance(&c); err != nil {
			t.Fatalf("Advance failed mid-chain: %v", err)
		}
	}

	want := []int{1, 1, 0}
	if len(keyLens) != len(want) {
		t.Fatalf("Expected %d slots, walked %d (%v)", len(want), len(keyLens), keyLens)
	}
	for i := range want {
		if keyLens[i] != want[i] {
			t.Errorf("Slot %d: key length %d, want %d", i, keyLens[i], want[i])
		}
	}
	if c.Position() != s.Backend().Size() {
		t.Errorf("Walk must end at the backend boundary, got %d", c.Position())
	}
}

func TestGetBufferTooSmall(t *testing.T) {
	s := newTestStore(t, 128)
	mustPut(t, s, "k", "a value that is long")

	var c Cursor
	if err := s.Search(&c, []byte("k")); err != nil {
		t.Fatalf("Failed to search: %v", err)
	}

	small := make([]byte, 3)
	if _, err := s.Get(&c, small); !errors.Is(err, ErrFailed) {
		t.Errorf("Expected ErrFailed for short value buffer, got %v", err)
	}

	if _, err := s.Get(&c, nil); !errors.Is(err, ErrBadArg) {
		t.Errorf("Expected ErrBadArg for empty value buffer, got %v", err)
	}
}

func TestFillUntilExhaustion(t *testing.T) {
	s := newTestStore(t, 512)

	var puts int
	for i := 0; ; i++ {
		err := s.Put([]byte(fmt.Sprintf("k%04d", i)), []byte("0123456789abcdef"))
		if err != nil {
			if !errors.Is(err, ErrNoSpace) {
				t.Fatalf("Expected only ErrNoSpace at exhaustion, got %v", err)
			}
			break
		}
		puts++
		if puts > 100 {
			t.Fatal("Store never reported exhaustion")
		}
	}
	if puts == 0 {
		t.Fatal("Expected at least one successful put")
	}

	// The chain must still be contiguous after exhaustion.
	res, err := s.Verify()
	if err != nil {
		t.Fatalf("Verify after exhaustion failed: %v", err)
	}
	if res.Used != puts {
		t.Errorf("Expected %d used slots, found %d", puts, res.Used)
	}

	// Every stored record is still reachable.
	if k, v := lookup(t, s, "k0000"); k != "k0000" || v != "0123456789abcdef" {
		t.Errorf("First record lost after exhaustion: (%q, %q)", k, v)
	}
}

func TestStatsRecorded(t *testing.T) {
	collector := stats.NewAtomicCollector()
	s := newTestStore(t, 128, WithStats(collector))

	mustPut(t, s, "k", "v")
	var c Cursor
	if err := s.Search(&c, []byte("k")); err != nil {
		t.Fatalf("Failed to search: %v", err)
	}

	got := collector.GetStats()
	if got["put_ops"].(uint64) != 1 {
		t.Errorf("Expected 1 put op, got %v", got["put_ops"])
	}
	if got["search_ops"].(uint64) != 1 {
		t.Errorf("Expected 1 search op, got %v", got["search_ops"])
	}
	if got["total_bytes_written"].(uint64) == 0 {
		t.Errorf("Expected written bytes to be tracked")
	}
}

func TestNewRejectsBadLayout(t *testing.T) {
	_, err := New(backend.NewMemory(64), WithLayout(slot.Layout{}))
	if !errors.Is(err, ErrBadArg) {
		t.Errorf("Expected ErrBadArg for invalid layout, got %v", err)
	}

	if _, err := New(nil); !errors.Is(err, ErrBadArg) {
		t.Errorf("Expected ErrBadArg for nil backend, got %v", err)
	}
}
