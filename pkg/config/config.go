// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads bissmon settings from YAML.
//
// Every field has a default matching the reference hardware, so a config
// file only needs the values that differ. Durations use Go syntax
// ("100ms", "1s").
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/bissmon/pkg/link"
)

// ErrInvalid is wrapped by every validation error
var ErrInvalid = errors.New("invalid config")

// Default serve settings
const (
	DefaultServeAddr     = ":8080"
	DefaultServeInterval = 100 * time.Millisecond
)

// Config is the complete bissmon configuration
type Config struct {
	Primary   Primary   `yaml:"primary"`
	Secondary Secondary `yaml:"secondary"`
	WebSocket WebSocket `yaml:"websocket"`
	Serve     Serve     `yaml:"serve"`
	Log       Log       `yaml:"log"`
}

// Primary is the telemetry device port plus its link settings
type Primary struct {
	Port               string `yaml:"port"`
	link.PrimaryConfig `yaml:",inline"`
}

// Secondary is the test stage port plus its link settings
type Secondary struct {
	Port                 string `yaml:"port"`
	link.SecondaryConfig `yaml:",inline"`
}

// WebSocket holds credentials for ws:// and wss:// ports. The password is
// never stored; it is prompted for when a username is set.
type WebSocket struct {
	Username      string `yaml:"username"`
	SkipSSLVerify bool   `yaml:"skip_ssl_verify"`
}

// Serve configures the publisher and metrics endpoint
type Serve struct {
	Addr     string        `yaml:"addr"`
	Interval time.Duration `yaml:"interval"`
}

// Log configures the process logger
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the reference configuration
func Default() Config {
	return Config{
		Primary:   Primary{PrimaryConfig: link.DefaultPrimaryConfig()},
		Secondary: Secondary{SecondaryConfig: link.DefaultSecondaryConfig()},
		Serve: Serve{
			Addr:     DefaultServeAddr,
			Interval: DefaultServeInterval,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := validateLink("primary", c.Primary.Config); err != nil {
		return err
	}
	if err := c.Primary.CRC.Validate(); err != nil {
		return fmt.Errorf("%w: primary.crc: %w", ErrInvalid, err)
	}

	s := c.Secondary.SecondaryConfig
	if err := validateLink("secondary", s.Config); err != nil {
		return err
	}
	for name, d := range map[string]time.Duration{
		"settle_delay":        s.SettleDelay,
		"response_window":     s.ResponseWindow,
		"reply_poll_interval": s.ReplyPollInterval,
		"poll_interval":       s.PollInterval,
		"stability_dwell":     s.StabilityDwell,
	} {
		if d < 0 {
			return invalid("secondary.%s must not be negative", name)
		}
	}
	if s.ResponseWindow == 0 {
		return invalid("secondary.response_window must be positive")
	}
	if s.StabilityTolerance < 0 {
		return invalid("secondary.stability_tolerance must not be negative")
	}
	for name, token := range map[string]string{
		"homing_token": s.HomingToken,
		"query_token":  s.QueryToken,
		"start_token":  s.StartToken,
		"stop_token":   s.StopToken,
	} {
		if token == "" {
			return invalid("secondary.%s is required", name)
		}
	}

	if c.Serve.Interval <= 0 {
		return invalid("serve.interval must be positive")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level %q (want debug, info, warn or error)", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format %q (want text or json)", c.Log.Format)
	}
	return nil
}

func validateLink(section string, c link.Config) error {
	if c.BaudRate <= 0 {
		return invalid("%s.baud_rate must be positive", section)
	}
	if c.ReadTimeout <= 0 {
		return invalid("%s.read_timeout must be positive", section)
	}
	if c.JoinTimeout <= 0 {
		return invalid("%s.join_timeout must be positive", section)
	}
	if c.HistoryCapacity <= 0 {
		return invalid("%s.history_capacity must be positive", section)
	}
	if c.ErrorBackoff < 0 {
		return invalid("%s.error_backoff must not be negative", section)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}
