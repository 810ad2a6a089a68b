// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"time"

	"github.com/Thermoquad/bissmon/pkg/crc6"
	"github.com/Thermoquad/bissmon/pkg/transport"
)

// Defaults shared by both links
const (
	DefaultHistoryCapacity = 100
	DefaultJoinTimeout     = 1 * time.Second
)

// Primary link defaults
const (
	DefaultPrimaryErrorBackoff = 100 * time.Millisecond
)

// Secondary link defaults. The offset, tolerance and dwell are calibration
// values for the reference test stage.
const (
	DefaultSettleDelay        = 100 * time.Millisecond
	DefaultResponseWindow     = 200 * time.Millisecond
	DefaultReplyPollInterval  = 10 * time.Millisecond
	DefaultPollInterval       = 100 * time.Millisecond
	DefaultSecondaryBackoff   = 500 * time.Millisecond
	DefaultPositionOffset     = 78460
	DefaultStabilityTolerance = 1
	DefaultStabilityDwell     = 1 * time.Second
)

// Secondary protocol tokens
const (
	DefaultHomingToken = "REF"
	DefaultQueryToken  = "TP"
	DefaultStartToken  = "RR9999"
	DefaultStopToken   = "SM"
	MoveCommandPrefix  = "G"
	CommandTerminator  = "\r"
)

// Config holds the settings common to every link
type Config struct {
	BaudRate        int           `yaml:"baud_rate"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	JoinTimeout     time.Duration `yaml:"join_timeout"`
	HistoryCapacity int           `yaml:"history_capacity"`
	ErrorBackoff    time.Duration `yaml:"error_backoff"`
}

// PrimaryConfig configures the telemetry link
type PrimaryConfig struct {
	Config `yaml:",inline"`

	// VerifyCRC enables local recomputation when telemetry lines carry the
	// transmitted CRC as a fifth field
	VerifyCRC bool        `yaml:"verify_crc"`
	CRC       crc6.Params `yaml:"crc"`
}

// SecondaryConfig configures the test stage link
type SecondaryConfig struct {
	Config `yaml:",inline"`

	SettleDelay       time.Duration `yaml:"settle_delay"`
	ResponseWindow    time.Duration `yaml:"response_window"`
	ReplyPollInterval time.Duration `yaml:"reply_poll_interval"`
	PollInterval      time.Duration `yaml:"poll_interval"`

	// position = -(raw - PositionOffset)
	PositionOffset     int64         `yaml:"position_offset"`
	StabilityTolerance int64         `yaml:"stability_tolerance"`
	StabilityDwell     time.Duration `yaml:"stability_dwell"`

	HomingToken string `yaml:"homing_token"`
	QueryToken  string `yaml:"query_token"`
	StartToken  string `yaml:"start_token"`
	StopToken   string `yaml:"stop_token"`
}

func defaultConfig(backoff time.Duration) Config {
	return Config{
		BaudRate:        transport.DefaultBaudRate,
		ReadTimeout:     transport.DefaultReadTimeout,
		JoinTimeout:     DefaultJoinTimeout,
		HistoryCapacity: DefaultHistoryCapacity,
		ErrorBackoff:    backoff,
	}
}

// DefaultPrimaryConfig returns the reference primary settings
func DefaultPrimaryConfig() PrimaryConfig {
	return PrimaryConfig{
		Config: defaultConfig(DefaultPrimaryErrorBackoff),
		CRC:    crc6.DefaultParams(),
	}
}

// DefaultSecondaryConfig returns the reference secondary settings
func DefaultSecondaryConfig() SecondaryConfig {
	return SecondaryConfig{
		Config:             defaultConfig(DefaultSecondaryBackoff),
		SettleDelay:        DefaultSettleDelay,
		ResponseWindow:     DefaultResponseWindow,
		ReplyPollInterval:  DefaultReplyPollInterval,
		PollInterval:       DefaultPollInterval,
		PositionOffset:     DefaultPositionOffset,
		StabilityTolerance: DefaultStabilityTolerance,
		StabilityDwell:     DefaultStabilityDwell,
		HomingToken:        DefaultHomingToken,
		QueryToken:         DefaultQueryToken,
		StartToken:         DefaultStartToken,
		StopToken:          DefaultStopToken,
	}
}

// GoZeroCommand returns the absolute move to the stage origin
func (c SecondaryConfig) GoZeroCommand() string {
	return MoveCommand(c.PositionOffset)
}
