// storage-bench measures flatkv against RAM and file backends: fill (put
// until exhaustion), search and scan workloads, with optional value
// compression. The linear first-fit scan makes put cost grow with chain
// length; this tool makes that visible.
package main

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/flatkv/flatkv/pkg/backend"
	"github.com/flatkv/flatkv/pkg/common/log"
	"github.com/flatkv/flatkv/pkg/compress"
	"github.com/flatkv/flatkv/pkg/slot"
	"github.com/flatkv/flatkv/pkg/store"
)

const (
	defaultBackendSize = 16 * 1024 * 1024
	defaultValueSize   = 100
	defaultKeySize     = 8
)

var (
	benchmarkType = pflag.String("type", "all", "benchmark to run: fill, search, scan or all")
	backendKind   = pflag.String("backend", "memory", "backend to run against: memory or file")
	backendSize   = pflag.Uint64("size", defaultBackendSize, "backend size in bytes")
	valueSize     = pflag.Int("value-size", defaultValueSize, "value size in bytes")
	keySize       = pflag.Int("key-size", defaultKeySize, "key size in bytes")
	searchCount   = pflag.Int("searches", 1000, "number of searches in the search benchmark")
	compression   = pflag.String("compression", "none", "value compression: none, snappy or zstd")
	dataDir       = pflag.String("data-dir", "./benchmark-data", "directory for file-backend data")
	seed          = pflag.Int64("seed", 42, "random seed for keys and values")
)

func main() {
	pflag.Parse()

	codec, err := compress.ParseCodec(*compression)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	comp, err := compress.NewCompressor(codec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer comp.Close()

	b, cleanup, err := openBackend()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	layout := slot.DefaultLayout()
	if *keySize > layout.MaxKeySize {
		layout.MaxKeySize = *keySize
	}

	s, err := store.New(b,
		store.WithLayout(layout),
		store.WithLogger(log.NewNopLogger()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := s.Prepare(); err != nil {
		fmt.Fprintf(os.Stderr, "Error preparing store: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Benchmark Report (%s)\n", time.Now().Format(time.RFC3339))
	fmt.Printf("backend=%s size=%d key-size=%d value-size=%d compression=%s\n\n",
		*backendKind, *backendSize, *keySize, *valueSize, comp.Codec())

	rng := rand.New(rand.NewSource(*seed))
	keys := runFill(s, comp, rng)

	switch strings.ToLower(*benchmarkType) {
	case "fill":
	case "search":
		runSearch(s, keys, rng)
	case "scan":
		runScan(s)
	case "all":
		runSearch(s, keys, rng)
		runScan(s)
	default:
		fmt.Fprintf(os.Stderr, "Unknown benchmark type: %s\n", *benchmarkType)
		os.Exit(1)
	}
}

func openBackend() (backend.Backend, func(), error) {
	switch *backendKind {
	case "memory":
		return backend.NewMemory(*backendSize), func() {}, nil
	case "file":
		if err := os.MkdirAll(*dataDir, 0755); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		path := filepath.Join(*dataDir, "bench.flatkv")
		fb, err := backend.CreateFile(path, *backendSize)
		if err != nil {
			return nil, nil, err
		}
		return fb, func() { fb.Close(); os.Remove(path) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend kind %q", *backendKind)
	}
}

// runFill puts records until the store reports exhaustion and returns the
// keys it stored.
func runFill(s *store.Store, comp *compress.Compressor, rng *rand.Rand) [][]byte {
	var (
		keys       [][]byte
		puts       int
		start      = time.Now()
		totalBytes uint64
	)

	for {
		key := randomBytes(rng, *keySize)
		value := randomBytes(rng, *valueSize)
		value, err := comp.Compress(value)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error compressing: %v\n", err)
			os.Exit(1)
		}

		if err := s.Put(key, value); err != nil {
			if errors.Is(err, store.ErrNoSpace) {
				break
			}
			fmt.Fprintf(os.Stderr, "Error during fill: %v\n", err)
			os.Exit(1)
		}
		keys = append(keys, key)
		puts++
		totalBytes += uint64(len(key) + len(value))
	}

	elapsed := time.Since(start)
	report("fill", puts, elapsed, totalBytes)
	return keys
}

func runSearch(s *store.Store, keys [][]byte, rng *rand.Rand) {
	if len(keys) == 0 {
		fmt.Println("search: no keys to search for")
		return
	}

	var (
		start = time.Now()
		hits  int
	)
	for i := 0; i < *searchCount; i++ {
		key := keys[rng.Intn(len(keys))]
		var c store.Cursor
		if err := s.Search(&c, key); err == nil {
			hits++
		}
	}
	elapsed := time.Since(start)
	report("search", *searchCount, elapsed, 0)
	fmt.Printf("  hits: %d/%d\n", hits, *searchCount)
}

func runScan(s *store.Store) {
	var (
		start      = time.Now()
		records    int
		totalBytes uint64
	)
	err := s.Scan(func(key, value []byte) error {
		records++
		totalBytes += uint64(len(key) + len(value))
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error during scan: %v\n", err)
		os.Exit(1)
	}
	report("scan", records, time.Since(start), totalBytes)
}

func report(name string, ops int, elapsed time.Duration, bytes uint64) {
	opsPerSec := float64(ops) / elapsed.Seconds()
	fmt.Printf("%s: %d ops in %.3fs (%.0f ops/s", name, ops, elapsed.Seconds(), opsPerSec)
	if bytes > 0 {
		fmt.Printf(", %.2f MB/s", float64(bytes)/elapsed.Seconds()/(1024*1024))
	}
	fmt.Println(")")
	if ops > 0 {
		fmt.Printf("  avg latency: %.1f µs\n", float64(elapsed.Microseconds())/float64(ops))
	}
}

func randomBytes(rng *rand.Rand, n int) []byte {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = letters[rng.Intn(len(letters))]
	}
	return buf
}
