// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/bissmon/pkg/config"
)

// Environment fallbacks for the logging flags
const (
	envLogLevel  = "BISSMON_LOG_LEVEL"
	envLogFormat = "BISSMON_LOG_FORMAT"
)

var (
	// Device ports (serial device or ws:// URL)
	primaryPort   string
	secondaryPort string
	baudRate      int

	configPath string
	logLevel   string
	logFormat  string

	// WebSocket connection flags
	wsUsername    string
	wsNoSSLVerify bool

	// Resolved by loadSettings before any command runs
	settings config.Config
	logger   = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "bissmon",
	Short: "BiSS Encoder Calibration Monitor",
	Long: `bissmon - A CLI tool for calibrating and validating BiSS position encoders.

It bridges two devices: the primary streams encoder telemetry (position,
error, warning and CRC-fail flags) and the secondary is a motorized test
stage that is polled for its position and can be homed.

Connection modes:
  Serial:    --primary /dev/ttyUSB0 --secondary /dev/ttyUSB1 [--baud 115200]
  WebSocket: --primary ws://host/path [--username user]

Settings can also be read from a YAML file with --config; flags override it.

For WebSocket authentication, the password is read from the BISSMON_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&primaryPort, "primary", "p", "", "Primary (telemetry) port or ws:// URL")
	rootCmd.PersistentFlags().StringVarP(&secondaryPort, "secondary", "s", "", "Secondary (test stage) port or ws:// URL")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error) [$"+envLogLevel+"]")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json) [$"+envLogFormat+"]")

	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// loadSettings merges defaults, the config file, the environment and flags,
// in that order, then installs the logger.
func loadSettings(cmd *cobra.Command, args []string) error {
	settings = config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		settings = loaded
	}

	if v := os.Getenv(envLogLevel); v != "" {
		settings.Log.Level = v
	}
	if v := os.Getenv(envLogFormat); v != "" {
		settings.Log.Format = v
	}

	flags := cmd.Flags()
	if flags.Changed("primary") {
		settings.Primary.Port = primaryPort
	}
	if flags.Changed("secondary") {
		settings.Secondary.Port = secondaryPort
	}
	if flags.Changed("baud") {
		settings.Primary.BaudRate = baudRate
		settings.Secondary.BaudRate = baudRate
	}
	if flags.Changed("log-level") {
		settings.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		settings.Log.Format = logFormat
	}
	if flags.Changed("username") {
		settings.WebSocket.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		settings.WebSocket.SkipSSLVerify = wsNoSSLVerify
	}

	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	logger = setupLogger(settings.Log.Level, settings.Log.Format, os.Stderr)
	slog.SetDefault(logger)
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
