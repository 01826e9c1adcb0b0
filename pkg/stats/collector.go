package stats

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// OperationType defines the type of operation being tracked
type OperationType string

// Operations of the slot store
const (
	OpPrepare    OperationType = "prepare"
	OpPut        OperationType = "put"
	OpSearch     OperationType = "search"
	OpSearchNext OperationType = "search_next"
	OpAdvance    OperationType = "advance"
	OpGet        OperationType = "get"
	OpGetKV      OperationType = "get_kv"
	OpScan       OperationType = "scan"
	OpVerify     OperationType = "verify"
)

// AtomicCollector provides centralized statistics collection with minimal
// contention using atomic operations
type AtomicCollector struct {
	counts   map[OperationType]*atomic.Uint64
	countsMu sync.RWMutex // Only used when creating new counter entries

	lastOpTime   map[OperationType]time.Time
	lastOpTimeMu sync.RWMutex // Only used for timestamp updates

	totalBytesRead    atomic.Uint64
	totalBytesWritten atomic.Uint64
	slotsScanned      atomic.Uint64

	errors   map[string]*atomic.Uint64
	errorsMu sync.RWMutex // Only used when creating new error entries

	latencies   map[OperationType]*LatencyTracker
	latenciesMu sync.RWMutex // Only used when creating new latency trackers
}

// LatencyTracker maintains running statistics about operation latencies
type LatencyTracker struct {
	count atomic.Uint64
	sum   atomic.Uint64 // sum in nanoseconds
	max   atomic.Uint64 // max in nanoseconds
	min   atomic.Uint64 // min in nanoseconds (0 until first sample)
}

// NewAtomicCollector creates a new atomic statistics collector
func NewAtomicCollector() *AtomicCollector {
	return &AtomicCollector{
		counts:     make(map[OperationType]*atomic.Uint64),
		lastOpTime: make(map[OperationType]time.Time),
		errors:     make(map[string]*atomic.Uint64),
		latencies:  make(map[OperationType]*LatencyTracker),
	}
}

// TrackOperation increments the counter for the specified operation type
func (c *AtomicCollector) TrackOperation(op OperationType) {
	c.getOrCreateCounter(op).Add(1)

	c.lastOpTimeMu.Lock()
	c.lastOpTime[op] = time.Now()
	c.lastOpTimeMu.Unlock()
}

// TrackOperationWithLatency tracks an operation and its latency
func (c *AtomicCollector) TrackOperationWithLatency(op OperationType, latencyNs uint64) {
	c.getOrCreateCounter(op).Add(1)

	c.lastOpTimeMu.Lock()
	c.lastOpTime[op] = time.Now()
	c.lastOpTimeMu.Unlock()

	tracker := c.getOrCreateLatencyTracker(op)
	tracker.count.Add(1)
	tracker.sum.Add(latencyNs)

	for {
		current := tracker.max.Load()
		if latencyNs <= current {
			break
		}
		if tracker.max.CompareAndSwap(current, latencyNs) {
			break
		}
	}

	for {
		current := tracker.min.Load()
		if current == 0 {
			if tracker.min.CompareAndSwap(0, latencyNs) {
				break
			}
			continue
		}
		if latencyNs >= current {
			break
		}
		if tracker.min.CompareAndSwap(current, latencyNs) {
			break
		}
	}
}

// TrackError increments the counter for the specified error type
func (c *AtomicCollector) TrackError(errorType string) {
	c.errorsMu.RLock()
	counter, exists := c.errors[errorType]
	c.errorsMu.RUnlock()

	if !exists {
		c.errorsMu.Lock()
		if counter, exists = c.errors[errorType]; !exists {
			counter = &atomic.Uint64{}
			c.errors[errorType] = counter
		}
		c.errorsMu.Unlock()
	}

	counter.Add(1)
}

// TrackBytes adds the specified number of bytes to the read or write counter
func (c *AtomicCollector) TrackBytes(isWrite bool, bytes uint64) {
	if isWrite {
		c.totalBytesWritten.Add(bytes)
	} else {
		c.totalBytesRead.Add(bytes)
	}
}

// TrackSlotsScanned adds to the running count of slots visited by chain scans
func (c *AtomicCollector) TrackSlotsScanned(n uint64) {
	c.slotsScanned.Add(n)
}

// GetStats returns all statistics as a map
func (c *AtomicCollector) GetStats() map[string]interface{} {
	stats := make(map[string]interface{})

	c.countsMu.RLock()
	for op, counter := range c.counts {
		stats[string(op)+"_ops"] = counter.Load()
	}
	c.countsMu.RUnlock()

	c.lastOpTimeMu.RLock()
	for op, timestamp := range c.lastOpTime {
		stats["last_"+string(op)+"_time"] = timestamp.UnixNano()
	}
	c.lastOpTimeMu.RUnlock()

	stats["total_bytes_read"] = c.totalBytesRead.Load()
	stats["total_bytes_written"] = c.totalBytesWritten.Load()
	stats["slots_scanned"] = c.slotsScanned.Load()

	c.errorsMu.RLock()
	errorStats := make(map[string]uint64)
	for errType, counter := range c.errors {
		errorStats[errType] = counter.Load()
	}
	c.errorsMu.RUnlock()
	stats["errors"] = errorStats

	c.latenciesMu.RLock()
	for op, tracker := range c.latencies {
		count := tracker.count.Load()
		if count == 0 {
			continue
		}

		latencyStats := map[string]interface{}{
			"count":  count,
			"avg_ns": tracker.sum.Load() / count,
		}
		if min := tracker.min.Load(); min != 0 {
			latencyStats["min_ns"] = min
		}
		if max := tracker.max.Load(); max != 0 {
			latencyStats["max_ns"] = max
		}

		stats[string(op)+"_latency"] = latencyStats
	}
	c.latenciesMu.RUnlock()

	return stats
}

// GetStatsFiltered returns statistics filtered by prefix
func (c *AtomicCollector) GetStatsFiltered(prefix string) map[string]interface{} {
	allStats := c.GetStats()
	filtered := make(map[string]interface{})

	for key, value := range allStats {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			filtered[key] = value
		}
	}

	return filtered
}

func (c *AtomicCollector) getOrCreateCounter(op OperationType) *atomic.Uint64 {
	c.countsMu.RLock()
	counter, exists := c.counts[op]
	c.countsMu.RUnlock()

	if !exists {
		c.countsMu.Lock()
		if counter, exists = c.counts[op]; !exists {
			counter = &atomic.Uint64{}
			c.counts[op] = counter
		}
		c.countsMu.Unlock()
	}

	return counter
}

func (c *AtomicCollector) getOrCreateLatencyTracker(op OperationType) *LatencyTracker {
	c.latenciesMu.RLock()
	tracker, exists := c.latencies[op]
	c.latenciesMu.RUnlock()

	if !exists {
		c.latenciesMu.Lock()
		if tracker, exists = c.latencies[op]; !exists {
			tracker = &LatencyTracker{}
			c.latencies[op] = tracker
		}
		c.latenciesMu.Unlock()
	}

	return tracker
}
