package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tcc-gateway/internal/config"
	"tcc-gateway/internal/logging"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "tcc-gateway",
	Short: "TCC CAN bus gateway",
	Long: `tcc-gateway drives a Tactical Control Component (TCC), a pan/tilt
sensor platform, over CAN.

It sends control commands, configures telemetry timeouts and keeps a live
table of the telemetry the TCC reports. Clients talk to it with 8-byte binary
messages over TCP or WebSocket; an HTTP API exposes the live tables.

Transports:
  SocketCAN: CAN_TRANSPORT=socketcan CAN_INTERFACE=can0
  SLCAN:     CAN_TRANSPORT=slcan SLCAN_PORT=/dev/ttyACM0

Configuration is read from --config (.env KEY=VALUE or .toml). Logging can be
overridden with TCC_LOG_LEVEL and TCC_LOG_FORMAT.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".env", "Path to .env or .toml configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (console or json)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configuration and builds the root logger. Flags win
// over the file; the TCC_LOG_* environment wins over both.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		if _, ok := logging.ParseLevel(logLevel); !ok {
			return nil, zerolog.Nop(), fmt.Errorf("unknown log level %q", logLevel)
		}
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	return cfg, logger, nil
}
