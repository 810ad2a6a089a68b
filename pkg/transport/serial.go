// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// pollTimeout is the read timeout used for non-blocking fills
const pollTimeout = time.Millisecond

// SerialTransport wraps a serial port
type SerialTransport struct {
	port        serial.Port
	readTimeout time.Duration
	buf         lineBuffer
	chunk       []byte
}

// OpenSerial opens a serial port at baudRate, 8N1
func OpenSerial(portName string, baudRate int, readTimeout time.Duration) (*SerialTransport, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return newSerialTransport(port, readTimeout), nil
}

func newSerialTransport(port serial.Port, readTimeout time.Duration) *SerialTransport {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &SerialTransport{
		port:        port,
		readTimeout: readTimeout,
		chunk:       make([]byte, 128),
	}
}

// fill performs one read with the given timeout. A timeout is not an error.
func (s *SerialTransport) fill(timeout time.Duration) error {
	if err := s.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("set read timeout: %w", err)
	}
	n, err := s.port.Read(s.chunk)
	if err != nil {
		if portErr, ok := err.(*serial.PortError); ok && portErr.Code() == serial.PortClosed {
			return ErrClosed
		}
		return fmt.Errorf("serial read: %w", err)
	}
	if n > 0 {
		s.buf.append(s.chunk[:n])
	}
	return nil
}

// ReadLine implements Transport
func (s *SerialTransport) ReadLine() (string, error) {
	deadline := time.Now().Add(s.readTimeout)
	for {
		if line, ok := s.buf.next(); ok {
			return line, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", ErrTimeout
		}
		if err := s.fill(remaining); err != nil {
			return "", err
		}
	}
}

// Write implements Transport
func (s *SerialTransport) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

// Buffered implements Transport
func (s *SerialTransport) Buffered() (int, error) {
	if err := s.fill(pollTimeout); err != nil {
		return s.buf.len(), err
	}
	return s.buf.len(), nil
}

// ResetInput implements Transport
func (s *SerialTransport) ResetInput() error {
	s.buf.reset()
	return s.port.ResetInputBuffer()
}

// Close implements Transport
func (s *SerialTransport) Close() error {
	return s.port.Close()
}
