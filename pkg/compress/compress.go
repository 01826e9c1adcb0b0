// Package compress provides optional value compression for flatkv tooling.
// Values are compressed before Put and decompressed after Get; the slot
// format itself never sees the codec, so compressed and plain stores share
// one layout.
package compress

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

// Codec identifies a compression algorithm.
type Codec int

const (
	// None passes data through unchanged.
	None Codec = iota
	// Snappy favors speed over ratio.
	Snappy
	// Zstd favors ratio over speed.
	Zstd
)

var (
	// ErrUnknownCodec is returned when an unsupported codec is specified.
	ErrUnknownCodec = errors.New("unknown compression codec")

	// ErrInvalidCompressedData is returned when data cannot be decompressed.
	ErrInvalidCompressedData = errors.New("invalid compressed data")
)

// ParseCodec maps a codec name ("none", "snappy", "zstd") to a Codec.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "none":
		return None, nil
	case "snappy":
		return Snappy, nil
	case "zstd":
		return Zstd, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// String returns the codec name.
func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", int(c))
	}
}

// Compressor compresses and decompresses byte slices for a fixed codec.
type Compressor struct {
	codec Codec

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder

	// Guards the zstd encoder/decoder, which are stateful.
	mu sync.Mutex
}

// NewCompressor creates a compressor with initialized codecs.
func NewCompressor(codec Codec) (*Compressor, error) {
	c := &Compressor{codec: codec}
	if codec == Zstd {
		encoder, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			encoder.Close()
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		c.zstdEncoder = encoder
		c.zstdDecoder = decoder
	}
	return c, nil
}

// Codec returns the codec the compressor was created with.
func (c *Compressor) Codec() Codec {
	return c.codec
}

// Compress compresses data with the compressor's codec.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	switch c.codec {
	case None:
		return data, nil
	case Snappy:
		return snappy.Encode(nil, data), nil
	case Zstd:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.zstdEncoder.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, c.codec)
	}
}

// Decompress reverses Compress.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	switch c.codec {
	case None:
		return data, nil
	case Snappy:
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCompressedData, err)
		}
		return out, nil
	case Zstd:
		c.mu.Lock()
		defer c.mu.Unlock()
		out, err := c.zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCompressedData, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, c.codec)
	}
}

// Close releases codec resources.
func (c *Compressor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.zstdEncoder != nil {
		c.zstdEncoder.Close()
		c.zstdEncoder = nil
	}
	if c.zstdDecoder != nil {
		c.zstdDecoder.Close()
		c.zstdDecoder = nil
	}
	return nil
}
