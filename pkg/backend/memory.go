package backend

// Memory is a fixed-size RAM backend. It is the cheapest way to exercise the
// store and doubles as a stand-in for a memory-mapped flash region.
//
// Memory performs no internal locking; like every backend it inherits the
// store's single-writer discipline.
type Memory struct {
	buf []byte
}

// NewMemory allocates a zeroed RAM backend of the given size.
func NewMemory(size uint64) *Memory {
	return &Memory{buf: make([]byte, size)}
}

// NewMemoryBuffer wraps an existing buffer, e.g. a flash image loaded from
// disk. The backend aliases the buffer; the caller must not resize it.
func NewMemoryBuffer(buf []byte) *Memory {
	return &Memory{buf: buf}
}

// ReadAt copies len(p) bytes from the buffer starting at off.
func (m *Memory) ReadAt(p []byte, off uint64) error {
	if err := checkRange(off, len(p), m.Size()); err != nil {
		return err
	}
	copy(p, m.buf[off:])
	return nil
}

// WriteAt copies len(p) bytes into the buffer starting at off.
func (m *Memory) WriteAt(p []byte, off uint64) error {
	if err := checkRange(off, len(p), m.Size()); err != nil {
		return err
	}
	copy(m.buf[off:], p)
	return nil
}

// Size reports the buffer length.
func (m *Memory) Size() uint64 {
	return uint64(len(m.buf))
}

// Bytes exposes the underlying buffer, mainly for tests and tooling that
// inspect the raw slot chain.
func (m *Memory) Bytes() []byte {
	return m.buf
}
