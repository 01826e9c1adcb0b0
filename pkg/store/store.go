// Package store implements an append-oriented key-value store over a flat
// byte-addressable backend. Records live in a gapless chain of framed slots
// starting at offset 0; free space is modelled as slots with a zero-length
// key. Put reuses the first free slot large enough for the record, splitting
// off the remainder as a fresh free slot.
//
// The store is strictly single-writer: the scan-then-split sequence in Put
// is not atomic, and no locking is performed. Concurrent Put calls against
// the same backend corrupt the chain. Cursors are independent caller-owned
// values, but become stale when the chain changes underneath them; no
// invalidation is detected.
package store

import (
	"fmt"
	"time"

	"github.com/flatkv/flatkv/pkg/backend"
	"github.com/flatkv/flatkv/pkg/common/log"
	"github.com/flatkv/flatkv/pkg/slot"
	"github.com/flatkv/flatkv/pkg/stats"
)

// Store binds a backend to the slot layout and the store operations. It
// holds no other state; the backend's lifecycle stays with the caller.
type Store struct {
	backend backend.Backend
	layout  slot.Layout
	logger  log.Logger
	stats   stats.Collector
	metrics Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithLayout overrides the default slot layout. The layout must match the
// one the backend was prepared with.
func WithLayout(l slot.Layout) Option {
	return func(s *Store) { s.layout = l }
}

// WithLogger sets the logger used for operation tracing.
func WithLogger(logger log.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithStats sets the statistics collector operations record into.
func WithStats(collector stats.Collector) Option {
	return func(s *Store) { s.stats = collector }
}

// WithMetrics sets the telemetry sink for operation metrics.
func WithMetrics(m Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New binds a store to a backend. The backend is owned by the caller and is
// never closed by the store.
func New(b backend.Backend, opts ...Option) (*Store, error) {
	if b == nil {
		return nil, fmt.Errorf("nil backend: %w", ErrBadArg)
	}

	s := &Store{
		backend: b,
		layout:  slot.DefaultLayout(),
		logger:  log.GetDefaultLogger().WithField("component", "store"),
		metrics: NewNopMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.layout.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Layout returns the slot layout the store was bound with.
func (s *Store) Layout() slot.Layout {
	return s.layout
}

// Backend returns the backend the store was bound with.
func (s *Store) Backend() backend.Backend {
	return s.backend
}

// Close releases the store handle. The backend stays open; its lifecycle is
// the caller's.
func (s *Store) Close() error {
	return nil
}

// Prepare formats a fresh store: one free slot spanning the entire backend,
// establishing the invariant that the chain covers the full extent. Any
// previous contents are unreachable afterward.
func (s *Store) Prepare() error {
	start := time.Now()

	capacity, err := s.layout.ValueCapacity(s.backend.Size(), 0)
	if err != nil {
		return fmt.Errorf("backend of %d bytes cannot hold a slot: %w", s.backend.Size(), ErrBadArg)
	}
	if capacity > s.layout.MaxValueFieldValue() {
		return fmt.Errorf("backend of %d bytes exceeds what a %d-byte value-length field can span: %w",
			s.backend.Size(), s.layout.ValueLenWidth, ErrBadArg)
	}

	if err := s.layout.WriteFreeSlot(s.backend, 0, capacity); err != nil {
		s.trackError("prepare")
		return err
	}

	s.track(stats.OpPrepare, start)
	s.metrics.RecordOperation("prepare", time.Since(start), true)
	s.logger.Debug("prepared store: %d bytes, %d free", s.backend.Size(), capacity)
	return nil
}

func (s *Store) track(op stats.OperationType, start time.Time) {
	if s.stats != nil {
		s.stats.TrackOperationWithLatency(op, uint64(time.Since(start).Nanoseconds()))
	}
}

func (s *Store) trackError(errorType string) {
	if s.stats != nil {
		s.stats.TrackError(errorType)
	}
}

func (s *Store) trackBytes(isWrite bool, n uint64) {
	if s.stats != nil {
		s.stats.TrackBytes(isWrite, n)
	}
}

func (s *Store) trackScanned(op string, n uint64) {
	if s.stats != nil {
		s.stats.TrackSlotsScanned(n)
	}
	s.metrics.RecordChainScan(op, n)
}
