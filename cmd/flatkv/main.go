package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/pflag"

	"github.com/flatkv/flatkv/pkg/backend"
	"github.com/flatkv/flatkv/pkg/common/log"
	"github.com/flatkv/flatkv/pkg/compress"
	"github.com/flatkv/flatkv/pkg/config"
	"github.com/flatkv/flatkv/pkg/stats"
	"github.com/flatkv/flatkv/pkg/store"
	"github.com/flatkv/flatkv/pkg/telemetry"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".open"),
	readline.PcItem(".create"),
	readline.PcItem(".close"),
	readline.PcItem(".exit"),
	readline.PcItem(".stats"),
	readline.PcItem(".verify"),
	readline.PcItem("PUT"),
	readline.PcItem("GET"),
	readline.PcItem("NEXT"),
	readline.PcItem("SCAN"),
)

const helpText = `
flatkv - an append-oriented slot store over a flat byte range.

Usage:
  flatkv [options] [backend_path]   - Start with an optional backend file

Options:
  --config PATH          - Load store configuration from PATH (JSONC)
  --create               - Create and prepare a fresh backend file
  --size N               - Backend size in bytes when creating (default 1048576)
  --mem N                - Use a RAM backend of N bytes instead of a file
  --compression CODEC    - Compress values: none, snappy or zstd
  --log-level LEVEL      - debug, info, warn or error
  --telemetry            - Export metrics and traces to stdout

Commands (interactive mode only):
  .help                  - Show this help message
  .open PATH             - Open an existing backend file
  .create PATH SIZE      - Create, prepare and open a fresh backend file
  .close                 - Close the current store
  .exit                  - Exit the program
  .stats                 - Show store statistics
  .verify                - Walk the slot chain and report its state

  PUT key value          - Store a key-value pair (keys are not unique)
  GET key                - Find the first record with the given key
  NEXT                   - Find the next record with the last searched key
  SCAN                   - List every stored record in offset order
`

type cliConfig struct {
	ConfigPath  string
	Create      bool
	Size        uint64
	MemSize     uint64
	Compression string
	LogLevel    string
	Telemetry   bool
	BackendPath string
}

// session is the interactive state: one open store plus the cursor left by
// the last GET, which NEXT resumes from.
type session struct {
	cfg       *config.Config
	st        *store.Store
	fileBack  *backend.File
	comp      *compress.Compressor
	collector *stats.AtomicCollector
	metrics   store.Metrics
	logger    log.Logger

	cursor    store.Cursor
	hasCursor bool
}

func main() {
	cli := parseFlags()

	logger := log.NewStandardLogger(log.WithLevel(log.ParseLevel(cli.LogLevel)))

	cfg := config.NewDefaultConfig(cli.BackendPath)
	if cli.ConfigPath != "" {
		loaded, err := config.LoadFromFile(cli.ConfigPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
			os.Exit(1)
		}
		cfg = loaded
		if cli.BackendPath != "" {
			cfg.BackendPath = cli.BackendPath
		}
	}
	if cli.Size != 0 {
		cfg.BackendSize = cli.Size
	}
	if cli.Compression != "" {
		cfg.Compression = cli.Compression
	}
	cfg.Telemetry.Enabled = cfg.Telemetry.Enabled || cli.Telemetry
	cfg.Telemetry.LoadFromEnv()

	sess := &session{cfg: cfg, logger: logger}

	codec, err := compress.ParseCodec(cfg.Compression)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	sess.comp, err = compress.NewCompressor(codec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer sess.comp.Close()

	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up telemetry: %s\n", err)
		os.Exit(1)
	}
	sess.metrics = store.NewMetrics(tel)
	defer sess.metrics.Close()

	switch {
	case cli.MemSize != 0:
		if err := sess.openMemory(cli.MemSize); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
	case cli.Create:
		if cfg.BackendPath == "" {
			fmt.Fprintln(os.Stderr, "Error: --create requires a backend path")
			os.Exit(1)
		}
		if err := sess.createFile(cfg.BackendPath, cfg.BackendSize); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
	case cfg.BackendPath != "":
		if err := sess.openFile(cfg.BackendPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
	}

	runInteractive(sess)
}

func parseFlags() cliConfig {
	var cli cliConfig
	pflag.StringVar(&cli.ConfigPath, "config", "", "store configuration file (JSONC)")
	pflag.BoolVar(&cli.Create, "create", false, "create and prepare a fresh backend file")
	pflag.Uint64Var(&cli.Size, "size", 0, "backend size in bytes when creating")
	pflag.Uint64Var(&cli.MemSize, "mem", 0, "use a RAM backend of this many bytes")
	pflag.StringVar(&cli.Compression, "compression", "", "value compression: none, snappy or zstd")
	pflag.StringVar(&cli.LogLevel, "log-level", "info", "log level: debug, info, warn or error")
	pflag.BoolVar(&cli.Telemetry, "telemetry", false, "export metrics and traces to stdout")
	pflag.Usage = func() {
		fmt.Print(helpText)
	}
	pflag.Parse()

	if args := pflag.Args(); len(args) > 0 {
		cli.BackendPath = args[0]
	}
	return cli
}

func (s *session) bindStore(b backend.Backend) error {
	layout, err := s.cfg.Layout()
	if err != nil {
		return err
	}
	s.collector = stats.NewAtomicCollector()
	st, err := store.New(b,
		store.WithLayout(layout),
		store.WithLogger(s.logger),
		store.WithStats(s.collector),
		store.WithMetrics(s.metrics))
	if err != nil {
		return err
	}
	s.st = st
	s.hasCursor = false
	return nil
}

func (s *session) openMemory(size uint64) error {
	if err := s.bindStore(backend.NewMemory(size)); err != nil {
		return err
	}
	if err := s.st.Prepare(); err != nil {
		s.st = nil
		return err
	}
	fmt.Printf("Prepared RAM store of %d bytes\n", size)
	return nil
}

func (s *session) createFile(path string, size uint64) error {
	fb, err := backend.CreateFile(path, size)
	if err != nil {
		return err
	}
	if err := s.bindStore(fb); err != nil {
		fb.Close()
		return err
	}
	if err := s.st.Prepare(); err != nil {
		s.st = nil
		fb.Close()
		return err
	}
	s.fileBack = fb
	fmt.Printf("Created store at %s (%d bytes)\n", path, size)
	return nil
}

func (s *session) openFile(path string) error {
	fb, err := backend.OpenFile(path, s.cfg.ReadOnly)
	if err != nil {
		return err
	}
	if err := s.bindStore(fb); err != nil {
		fb.Close()
		return err
	}
	s.fileBack = fb
	fmt.Printf("Opened store at %s (%d bytes)\n", path, fb.Size())
	return nil
}

func (s *session) close() {
	if s.st != nil {
		s.st.Close()
		s.st = nil
	}
	if s.fileBack != nil {
		s.fileBack.Sync()
		s.fileBack.Close()
		s.fileBack = nil
	}
	s.hasCursor = false
}

func runInteractive(sess *session) {
	fmt.Println("flatkv interactive shell")
	fmt.Println("Type .help for available commands")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "flatkv> ",
		HistoryFile:     os.TempDir() + "/flatkv_history",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       ".exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or interrupt
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToUpper(parts[0])

		if strings.HasPrefix(parts[0], ".") {
			if !runDotCommand(sess, parts) {
				return
			}
			continue
		}

		if sess.st == nil {
			fmt.Println("No store open (use .open or .create)")
			continue
		}

		switch cmd {
		case "PUT":
			if len(parts) < 3 {
				fmt.Println("Usage: PUT key value")
				continue
			}
			value := []byte(strings.Join(parts[2:], " "))
			value, err := sess.comp.Compress(value)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error compressing value: %s\n", err)
				continue
			}
			if err := sess.st.Put([]byte(parts[1]), value); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				continue
			}
			fmt.Println("OK")

		case "GET":
			if len(parts) != 2 {
				fmt.Println("Usage: GET key")
				continue
			}
			if err := sess.st.Search(&sess.cursor, []byte(parts[1])); err != nil {
				sess.hasCursor = false
				reportSearchError(err)
				continue
			}
			sess.hasCursor = true
			printRecord(sess)

		case "NEXT":
			if !sess.hasCursor {
				fmt.Println("No previous GET to continue from")
				continue
			}
			if err := sess.st.SearchNext(&sess.cursor); err != nil {
				sess.hasCursor = false
				reportSearchError(err)
				continue
			}
			printRecord(sess)

		case "SCAN":
			count := 0
			err := sess.st.Scan(func(key, value []byte) error {
				value, derr := sess.comp.Decompress(value)
				if derr != nil {
					return derr
				}
				fmt.Printf("%s: %s\n", key, value)
				count++
				return nil
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				continue
			}
			fmt.Printf("%d records\n", count)

		default:
			fmt.Printf("Unknown command: %s (try .help)\n", parts[0])
		}
	}
}

// runDotCommand handles the dot commands; it returns false when the shell
// should exit.
func runDotCommand(sess *session, parts []string) bool {
	switch parts[0] {
	case ".help":
		fmt.Print(helpText)

	case ".open":
		if len(parts) < 2 {
			fmt.Println("Error: Missing path argument")
			return true
		}
		sess.close()
		if err := sess.openFile(parts[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %s\n", err)
		}

	case ".create":
		if len(parts) < 3 {
			fmt.Println("Usage: .create PATH SIZE")
			return true
		}
		size, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid size %q\n", parts[2])
			return true
		}
		sess.close()
		if err := sess.createFile(parts[1], size); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating store: %s\n", err)
		}

	case ".close":
		if sess.st == nil {
			fmt.Println("No store open")
			return true
		}
		sess.close()
		fmt.Println("Store closed")

	case ".exit":
		sess.close()
		fmt.Println("Goodbye!")
		return false

	case ".stats":
		if sess.st == nil {
			fmt.Println("No store open")
			return true
		}
		printStats(sess.collector.GetStats())

	case ".verify":
		if sess.st == nil {
			fmt.Println("No store open")
			return true
		}
		res, err := sess.st.Verify()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Verification FAILED: %s\n", err)
			return true
		}
		fmt.Printf("Chain OK: %d slots (%d used, %d free)\n", res.Slots, res.Used, res.Free)
		fmt.Printf("  Used bytes: %d\n", res.UsedBytes)
		fmt.Printf("  Free bytes: %d\n", res.FreeBytes)
		fmt.Printf("  Fingerprint: %016x\n", res.Fingerprint)

	default:
		fmt.Printf("Unknown command: %s (try .help)\n", parts[0])
	}
	return true
}

// printRecord reads and prints the record under the session cursor.
func printRecord(sess *session) {
	keyLen, valueLen, err := sess.st.GetKV(&sess.cursor, nil, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return
	}
	key := make([]byte, keyLen)
	value := make([]byte, valueLen)
	if _, _, err := sess.st.GetKV(&sess.cursor, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return
	}
	value, err = sess.comp.Decompress(value)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decompressing value: %s\n", err)
		return
	}
	fmt.Printf("%s: %s (offset %d)\n", key, value, sess.cursor.Position())
}

func reportSearchError(err error) {
	if store.IsExhausted(err) {
		fmt.Println("Not found")
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
}

func printStats(all map[string]interface{}) {
	getUint64 := func(key string) uint64 {
		if val, ok := all[key]; ok {
			if v, ok := val.(uint64); ok {
				return v
			}
		}
		return 0
	}

	fmt.Println("Operations:")
	for _, op := range []string{"prepare", "put", "search", "search_next", "advance", "get", "get_kv", "scan", "verify"} {
		if n := getUint64(op + "_ops"); n > 0 {
			fmt.Printf("  %-12s %d\n", op, n)
		}
	}

	fmt.Println("Storage:")
	fmt.Printf("  bytes read     %d\n", getUint64("total_bytes_read"))
	fmt.Printf("  bytes written  %d\n", getUint64("total_bytes_written"))
	fmt.Printf("  slots scanned  %d\n", getUint64("slots_scanned"))

	if errStats, ok := all["errors"].(map[string]uint64); ok && len(errStats) > 0 {
		fmt.Println("Errors:")
		for errType, n := range errStats {
			fmt.Printf("  %-12s %d\n", errType, n)
		}
	}

	for _, op := range []string{"put", "search_next", "get"} {
		if latency, ok := all[op+"_latency"].(map[string]interface{}); ok {
			if avgNs, ok := latency["avg_ns"].(uint64); ok {
				fmt.Printf("Latency (%s avg): %.3f ms\n", op, float64(avgNs)/1e6)
			}
		}
	}
}
