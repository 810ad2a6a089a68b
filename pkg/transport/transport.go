// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport provides line-oriented duplex byte streams for the
// bridge devices: a local serial port or a remote serial bridge reached
// over WebSocket.
package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Defaults shared by both devices
const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 1 * time.Second
)

var (
	// ErrTimeout is returned by ReadLine when no complete line arrived
	// within the read timeout. Partial data stays buffered.
	ErrTimeout = errors.New("transport: read timeout")

	// ErrClosed is returned after the transport has been closed or the
	// remote side went away
	ErrClosed = errors.New("transport: connection closed")
)

// Transport is a duplex byte stream that hands out complete text lines
type Transport interface {
	// ReadLine blocks up to the read timeout for one newline-terminated
	// line. The terminator and any trailing carriage return are stripped.
	ReadLine() (string, error)

	// Write sends raw bytes
	Write(p []byte) (int, error)

	// Buffered returns the number of received bytes not yet consumed,
	// without blocking
	Buffered() (int, error)

	// ResetInput discards all pending input
	ResetInput() error

	Close() error
}

// Opener opens a transport for a port identifier
type Opener func(port string, baudRate int, readTimeout time.Duration) (Transport, error)

// Dialer opens serial ports, or WebSocket bridges for ws:// and wss://
// port identifiers
type Dialer struct {
	// HTTP Basic auth for WebSocket bridges
	Username string
	Password string

	// Skip TLS certificate verification (wss:// only)
	SkipSSLVerify bool
}

// Open implements Opener
func (d Dialer) Open(port string, baudRate int, readTimeout time.Duration) (Transport, error) {
	if IsWebSocketURL(port) {
		return OpenWebSocket(port, d.Username, d.Password, d.SkipSSLVerify, readTimeout)
	}
	return OpenSerial(port, baudRate, readTimeout)
}

// Open opens port with a zero-value Dialer
func Open(port string, baudRate int, readTimeout time.Duration) (Transport, error) {
	return Dialer{}.Open(port, baudRate, readTimeout)
}

// IsWebSocketURL reports whether port names a WebSocket bridge
func IsWebSocketURL(port string) bool {
	return strings.HasPrefix(port, "ws://") || strings.HasPrefix(port, "wss://")
}

// Describe returns a short connection description for logs and headers
func Describe(port string, baudRate int) string {
	if IsWebSocketURL(port) {
		return "WebSocket: " + port
	}
	return fmt.Sprintf("Serial: %s @ %d baud", port, baudRate)
}
