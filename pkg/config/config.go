// Package config defines the on-disk configuration for a flatkv store and
// its tooling: where the backend lives, the slot layout it was formatted
// with, and ambient settings for logging, compression and telemetry.
//
// Config files are JSON with comments and trailing commas permitted
// (standardized through hujson before parsing), so store configs can be
// annotated in place.
package config

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"

	"github.com/flatkv/flatkv/pkg/slot"
	"github.com/flatkv/flatkv/pkg/telemetry"
)

const CurrentVersion = 1

var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrConfigNotFound = errors.New("configuration file not found")
)

// Config describes one store and how tooling should open it.
type Config struct {
	Version int `json:"version"`

	// Backend configuration. An empty BackendPath means a RAM backend of
	// BackendSize bytes.
	BackendPath string `json:"backend_path"`
	BackendSize uint64 `json:"backend_size"`
	ReadOnly    bool   `json:"read_only"`

	// Slot layout. Magic is hex-encoded; empty selects the default.
	Magic         string `json:"magic,omitempty"`
	KeyLenWidth   int    `json:"key_len_width"`
	ValueLenWidth int    `json:"value_len_width"`
	MaxKeySize    int    `json:"max_key_size"`

	// Compression applied to values by tooling before they reach the
	// store: "none", "snappy" or "zstd". The slot format itself is
	// unaware of it.
	Compression string `json:"compression"`

	// Ambient settings.
	LogLevel  string           `json:"log_level"`
	Telemetry telemetry.Config `json:"telemetry"`
}

// NewDefaultConfig creates a Config with recommended default values for a
// store backed by the given file path.
func NewDefaultConfig(backendPath string) *Config {
	return &Config{
		Version:       CurrentVersion,
		BackendPath:   backendPath,
		BackendSize:   1024 * 1024, // 1MB
		KeyLenWidth:   slot.DefaultLengthWidth,
		ValueLenWidth: slot.DefaultLengthWidth,
		MaxKeySize:    slot.DefaultMaxKeySize,
		Compression:   "none",
		LogLevel:      "info",
		Telemetry:     telemetry.DefaultConfig(),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Version <= 0 {
		return fmt.Errorf("%w: version must be positive", ErrInvalidConfig)
	}
	if c.BackendPath == "" && c.BackendSize == 0 {
		return fmt.Errorf("%w: memory backend requires a backend size", ErrInvalidConfig)
	}
	switch c.Compression {
	case "", "none", "snappy", "zstd":
	default:
		return fmt.Errorf("%w: unknown compression %q", ErrInvalidConfig, c.Compression)
	}
	if _, err := c.Layout(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Layout builds the slot layout the config describes.
func (c *Config) Layout() (slot.Layout, error) {
	layout := slot.DefaultLayout()
	if c.Magic != "" {
		magic, err := hex.DecodeString(c.Magic)
		if err != nil {
			return slot.Layout{}, fmt.Errorf("magic is not valid hex: %w", err)
		}
		layout.Magic = magic
	}
	if c.KeyLenWidth != 0 {
		layout.KeyLenWidth = c.KeyLenWidth
	}
	if c.ValueLenWidth != 0 {
		layout.ValueLenWidth = c.ValueLenWidth
	}
	if c.MaxKeySize != 0 {
		layout.MaxKeySize = c.MaxKeySize
	}
	if err := layout.Validate(); err != nil {
		return slot.Layout{}, err
	}
	return layout, nil
}

// LoadFromFile reads and validates a config file. The file may carry
// comments and trailing commas.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveToFile writes the config atomically, so a crash mid-save never leaves
// a truncated file behind.
func (c *Config) SaveToFile(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	data = append(data, '\n')

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
