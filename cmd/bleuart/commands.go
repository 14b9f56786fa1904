package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/espruino/espruino.github.io/internal/ble"
	"github.com/espruino/espruino.github.io/internal/config"
	"github.com/espruino/espruino.github.io/internal/uart"
)

var (
	rootCmd = &cobra.Command{
		Use:           "bleuart",
		Short:         "Talk to Espruino and other Nordic UART (NUS) devices over BLE.",
		Long:          ``,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	flagConfig  string
	flagName    string
	flagTimeout time.Duration

	cfg *config.Config
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to config file (default: ~/.config/bleuart/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&flagName, "name", "n", "", "advertised-name prefix of the device to use, e.g. \"Puck.js\"")
	rootCmd.PersistentFlags().DurationVarP(&flagTimeout, "timeout", "t", 30*time.Second, "overall timeout per operation")
	rootCmd.PersistentPreRunE = setup
}

func Execute() error {
	return rootCmd.Execute()
}

// setup loads the config, applies flag overrides, and configures logging.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = loadConfig(flagConfig)
	if err != nil {
		return err
	}
	if flagName != "" {
		cfg.Device.Name = flagName
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		c, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		slog.Debug("config loaded", "path", defaultPath)
		return c, nil
	}

	return config.Default(), nil
}

// newSession builds a session over the hardware adapter.
func newSession() *uart.Session {
	return uart.NewSession(ble.NewBluetoothAdapter(), cfg.UARTOptions())
}
