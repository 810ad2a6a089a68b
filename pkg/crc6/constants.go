// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package crc6 implements the CRC-6 checksum carried in BiSS-C single-cycle
// data, bit-compatible with the FPGA data checker.
//
// The remainder is computed MSB-first over the position bits followed by the
// inverted error and warning bits, as they appear on the wire. The encoder
// also transmits the CRC inverted; see Transmitted.
package crc6

import (
	"errors"
	"fmt"
)

// CRC-6 configuration (x^6 + x + 1)
const (
	Polynomial = 0x43
	crcTaps    = 0x03 // polynomial without the x^6 term
	crcMask    = 0x3F
	crcMSB     = 5
)

// Position width limits
const (
	DefaultWidth = 22
	MinWidth     = 1
	MaxWidth     = 32
)

// ErrInvalidWidth is returned by Params.Validate for widths outside 1..32
var ErrInvalidWidth = errors.New("crc6: position width out of range")

// Params describes the single-cycle data layout the CRC covers
type Params struct {
	Width int `yaml:"width"`
}

// DefaultParams returns the 22-bit layout used by the reference encoder
func DefaultParams() Params {
	return Params{Width: DefaultWidth}
}

// Validate checks that the position width is usable
func (p Params) Validate() error {
	if p.Width < MinWidth || p.Width > MaxWidth {
		return fmt.Errorf("%w: %d (valid %d-%d)", ErrInvalidWidth, p.Width, MinWidth, MaxWidth)
	}
	return nil
}
