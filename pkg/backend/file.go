package backend

import (
	"fmt"
	"os"
)

// File is a backend over an *os.File. The file's size is captured when the
// backend is created and treated as the fixed extent; the store never grows
// or truncates it. This is the shape used for flash images and db files.
type File struct {
	f        *os.File
	size     uint64
	readOnly bool
}

// OpenFile opens an existing file as a backend. The current file size
// becomes the backend extent.
func OpenFile(path string, readOnly bool) (*File, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("open backend file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat backend file: %w", err)
	}
	return &File{f: f, size: uint64(info.Size()), readOnly: readOnly}, nil
}

// CreateFile creates (or truncates) a file of exactly size bytes and opens
// it as a backend. The fresh extent is zero-filled by the filesystem.
func CreateFile(path string, size uint64) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("create backend file: %w", err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("size backend file: %w", err)
	}
	return &File{f: f, size: size}, nil
}

// ReadAt reads len(p) bytes from the file starting at off.
func (fb *File) ReadAt(p []byte, off uint64) error {
	if err := checkRange(off, len(p), fb.size); err != nil {
		return err
	}
	if _, err := fb.f.ReadAt(p, int64(off)); err != nil {
		return fmt.Errorf("backend read at %d: %w", off, err)
	}
	return nil
}

// WriteAt writes len(p) bytes to the file starting at off.
func (fb *File) WriteAt(p []byte, off uint64) error {
	if fb.readOnly {
		return ErrReadOnly
	}
	if err := checkRange(off, len(p), fb.size); err != nil {
		return err
	}
	if _, err := fb.f.WriteAt(p, int64(off)); err != nil {
		return fmt.Errorf("backend write at %d: %w", off, err)
	}
	return nil
}

// Size reports the extent captured at open time.
func (fb *File) Size() uint64 {
	return fb.size
}

// Sync flushes buffered writes to stable storage.
func (fb *File) Sync() error {
	return fb.f.Sync()
}

// Close closes the underlying file. The backend must not be used afterward.
func (fb *File) Close() error {
	return fb.f.Close()
}
