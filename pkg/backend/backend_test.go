package backend

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryReadWrite(t *testing.T) {
	m := NewMemory(64)

	if m.Size() != 64 {
		t.Fatalf("Expected size 64, got %d", m.Size())
	}

	data := []byte("hello")
	if err := m.WriteAt(data, 10); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}

	got := make([]byte, 5)
	if err := m.ReadAt(got, 10); err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Expected %q, got %q", data, got)
	}
}

func TestMemoryBounds(t *testing.T) {
	m := NewMemory(16)

	if err := m.WriteAt(make([]byte, 8), 9); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange for write past end, got %v", err)
	}
	if err := m.ReadAt(make([]byte, 1), 16); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange for read at end, got %v", err)
	}

	// Exactly at the boundary is fine.
	if err := m.WriteAt(make([]byte, 8), 8); err != nil {
		t.Errorf("Expected boundary write to succeed, got %v", err)
	}
}

func TestMemoryBuffer(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	m := NewMemoryBuffer(buf)

	if m.Size() != 4 {
		t.Fatalf("Expected size 4, got %d", m.Size())
	}

	if err := m.WriteAt([]byte{9}, 0); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if buf[0] != 9 {
		t.Errorf("Expected write to alias the caller's buffer")
	}
}

func TestFileBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.flatkv")

	fb, err := CreateFile(path, 128)
	if err != nil {
		t.Fatalf("Failed to create file backend: %v", err)
	}

	if fb.Size() != 128 {
		t.Fatalf("Expected size 128, got %d", fb.Size())
	}

	data := []byte("persisted")
	if err := fb.WriteAt(data, 32); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if err := fb.WriteAt(make([]byte, 1), 128); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange past end, got %v", err)
	}
	if err := fb.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	// Reopen and read back.
	fb, err = OpenFile(path, false)
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	defer fb.Close()

	got := make([]byte, len(data))
	if err := fb.ReadAt(got, 32); err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Expected %q, got %q", data, got)
	}
}

func TestFileBackendReadOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ro.flatkv")

	fb, err := CreateFile(path, 32)
	if err != nil {
		t.Fatalf("Failed to create file backend: %v", err)
	}
	fb.Close()

	ro, err := OpenFile(path, true)
	if err != nil {
		t.Fatalf("Failed to open read-only: %v", err)
	}
	defer ro.Close()

	if err := ro.WriteAt([]byte{1}, 0); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly, got %v", err)
	}
}

func TestOpenFileMissing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing"), false)
	if err == nil {
		t.Fatal("Expected error opening missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected wrapped os.ErrNotExist, got %v", err)
	}
}
