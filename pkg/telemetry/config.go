package telemetry

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the telemetry provider.
type Config struct {
	// ServiceName identifies the service in telemetry data
	ServiceName string `json:"service_name"`

	// ServiceVersion identifies the service version in telemetry data
	ServiceVersion string `json:"service_version"`

	// Enabled controls whether telemetry is active
	Enabled bool `json:"enabled"`

	// SampleRate controls trace sampling (0.0 to 1.0)
	SampleRate float64 `json:"sample_rate"`

	// ExportInterval controls how often metrics are exported
	ExportInterval time.Duration `json:"export_interval"`

	// ExportTimeout controls how long to wait for exports
	ExportTimeout time.Duration `json:"export_timeout"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "flatkv",
		ServiceVersion: "development",
		Enabled:        false,
		SampleRate:     1.0,
		ExportInterval: 15 * time.Second,
		ExportTimeout:  30 * time.Second,
	}
}

// LoadFromEnv loads configuration from environment variables, overriding defaults.
func (c *Config) LoadFromEnv() {
	if val := os.Getenv("FLATKV_TELEMETRY_SERVICE_NAME"); val != "" {
		c.ServiceName = val
	}
	if val := os.Getenv("FLATKV_TELEMETRY_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Enabled = enabled
		}
	}
	if val := os.Getenv("FLATKV_TELEMETRY_SAMPLE_RATE"); val != "" {
		if rate, err := strconv.ParseFloat(val, 64); err == nil {
			c.SampleRate = rate
		}
	}
	if val := os.Getenv("FLATKV_TELEMETRY_EXPORT_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.ExportInterval = d
		}
	}
	if val := os.Getenv("FLATKV_TELEMETRY_EXPORT_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.ExportTimeout = d
		}
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name must not be empty")
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample rate %v outside [0, 1]", c.SampleRate)
	}
	if c.ExportInterval <= 0 {
		return fmt.Errorf("export interval must be positive")
	}
	if c.ExportTimeout <= 0 {
		return fmt.Errorf("export timeout must be positive")
	}
	return nil
}
