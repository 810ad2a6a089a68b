// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/bissmon/pkg/crc6"
	"github.com/Thermoquad/bissmon/pkg/link"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 115200, cfg.Primary.BaudRate)
	assert.Equal(t, time.Second, cfg.Primary.ReadTimeout)
	assert.Equal(t, 100, cfg.Primary.HistoryCapacity)
	assert.Equal(t, crc6.DefaultWidth, cfg.Primary.CRC.Width)
	assert.Equal(t, int64(78460), cfg.Secondary.PositionOffset)
	assert.Equal(t, int64(1), cfg.Secondary.StabilityTolerance)
	assert.Equal(t, time.Second, cfg.Secondary.StabilityDwell)
	assert.Equal(t, 500*time.Millisecond, cfg.Secondary.ErrorBackoff)
	assert.Equal(t, "G78460", cfg.Secondary.GoZeroCommand())
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
primary:
  port: /dev/ttyUSB0
  verify_crc: true
  crc:
    width: 24
secondary:
  port: ws://bridge.local/serial
  baud_rate: 9600
  stability_dwell: 1500ms
  position_offset: 80000
websocket:
  username: admin
log:
  level: debug
  format: json
`))
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Primary.Port)
	assert.True(t, cfg.Primary.VerifyCRC)
	assert.Equal(t, 24, cfg.Primary.CRC.Width)
	assert.Equal(t, 115200, cfg.Primary.BaudRate)

	assert.Equal(t, "ws://bridge.local/serial", cfg.Secondary.Port)
	assert.Equal(t, 9600, cfg.Secondary.BaudRate)
	assert.Equal(t, 1500*time.Millisecond, cfg.Secondary.StabilityDwell)
	assert.Equal(t, int64(80000), cfg.Secondary.PositionOffset)
	assert.Equal(t, link.DefaultQueryToken, cfg.Secondary.QueryToken)

	assert.Equal(t, "admin", cfg.WebSocket.Username)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseUnknownKey(t *testing.T) {
	_, err := Parse([]byte("primary:\n  bogus: 1\n"))
	assert.Error(t, err)
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"crc width", "primary:\n  crc:\n    width: 40\n"},
		{"baud", "primary:\n  baud_rate: 0\n"},
		{"history", "secondary:\n  history_capacity: -1\n"},
		{"tolerance", "secondary:\n  stability_tolerance: -1\n"},
		{"token", "secondary:\n  query_token: \"\"\n"},
		{"window", "secondary:\n  response_window: 0s\n"},
		{"negative settle", "secondary:\n  settle_delay: -1s\n"},
		{"log level", "log:\n  level: loud\n"},
		{"log format", "log:\n  format: xml\n"},
		{"serve interval", "serve:\n  interval: 0s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bissmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("serve:\n  addr: 127.0.0.1:9000\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Serve.Addr)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
