// Package config loads the YAML configuration for the bleuart tool.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/espruino/espruino.github.io/internal/uart"
)

// Config holds all application configuration.
type Config struct {
	Device   DeviceConfig `yaml:"device"`
	Scan     ScanConfig   `yaml:"scan"`
	UART     UARTConfig   `yaml:"uart"`
	LogLevel string       `yaml:"log_level"`
}

// DeviceConfig selects which peripheral to talk to.
type DeviceConfig struct {
	// Name is an advertised-name prefix filter, e.g. "Puck.js".
	// Empty matches any device advertising the UART service.
	Name string `yaml:"name"`
}

// ScanConfig holds discovery settings.
type ScanConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// UARTConfig holds byte-stream settings.
type UARTConfig struct {
	ChunkSize      int `yaml:"chunk_size"`       // bytes per characteristic write
	PollIntervalMS int `yaml:"poll_interval_ms"` // silence window ending a response
	PollBudget     int `yaml:"poll_budget"`      // max silence windows per response
	ReceiveBuffer  int `yaml:"receive_buffer"`   // response buffer capacity in bytes
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "bleuart")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	opts := uart.DefaultOptions()
	return &Config{
		Scan: ScanConfig{
			TimeoutSeconds: 10,
		},
		UART: UARTConfig{
			ChunkSize:      opts.ChunkSize,
			PollIntervalMS: int(opts.PollInterval / time.Millisecond),
			PollBudget:     opts.PollBudget,
			ReceiveBuffer:  opts.ReceiveBufferSize,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Scan.TimeoutSeconds <= 0 {
		return fmt.Errorf("scan.timeout_seconds must be > 0")
	}

	if c.UART.ChunkSize <= 0 {
		return fmt.Errorf("uart.chunk_size must be > 0")
	}

	if c.UART.PollIntervalMS <= 0 {
		return fmt.Errorf("uart.poll_interval_ms must be > 0")
	}

	if c.UART.PollBudget <= 0 {
		return fmt.Errorf("uart.poll_budget must be > 0")
	}

	if c.UART.ReceiveBuffer <= 0 {
		return fmt.Errorf("uart.receive_buffer must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ScanTimeout returns the discovery timeout as a duration.
func (c *Config) ScanTimeout() time.Duration {
	return time.Duration(c.Scan.TimeoutSeconds) * time.Second
}

// UARTOptions converts the config into connection options.
func (c *Config) UARTOptions() uart.Options {
	return uart.Options{
		DeviceName:        c.Device.Name,
		ChunkSize:         c.UART.ChunkSize,
		PollInterval:      time.Duration(c.UART.PollIntervalMS) * time.Millisecond,
		PollBudget:        c.UART.PollBudget,
		ReceiveBufferSize: c.UART.ReceiveBuffer,
	}
}
