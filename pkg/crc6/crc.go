// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crc6

// step clocks one input bit through the shift register
func step(crc uint8, bit uint8) uint8 {
	feedback := bit ^ ((crc >> crcMSB) & 1)
	crc = (crc << 1) & crcMask
	if feedback != 0 {
		crc ^= crcTaps
	}
	return crc
}

// clampWidth keeps width inside 1..32 so Encode stays total
func clampWidth(width int) int {
	if width < MinWidth {
		return MinWidth
	}
	if width > MaxWidth {
		return MaxWidth
	}
	return width
}

// maskPosition drops position bits above width
func maskPosition(position uint32, width int) uint32 {
	if width >= 32 {
		return position
	}
	return position & (uint32(1)<<width - 1)
}

// Checksum computes the CRC-6 remainder over the low width bits of data,
// MSB first, without status bits.
func Checksum(data uint32, width int) uint8 {
	width = clampWidth(width)
	data = maskPosition(data, width)

	var crc uint8
	for i := width - 1; i >= 0; i-- {
		crc = step(crc, uint8(data>>uint(i))&1)
	}
	return crc
}

// Encode computes the CRC-6 remainder for a single-cycle data word.
//
// errorBit and warningBit are the decoded, active-high status values. The
// encoder transmits them inverted, so the inverted values are fed into the
// register after the position bits.
func Encode(position uint32, width int, errorBit, warningBit bool) uint8 {
	crc := Checksum(position, width)
	crc = step(crc, wireBit(errorBit))
	crc = step(crc, wireBit(warningBit))
	return crc
}

// wireBit returns the transmitted (inverted) form of a decoded status bit
func wireBit(decoded bool) uint8 {
	if decoded {
		return 0
	}
	return 1
}

// Transmitted returns the CRC as it appears on the wire (bitwise inverted)
func Transmitted(remainder uint8) uint8 {
	return ^remainder & crcMask
}

// Verify reports whether a received (transmitted form) CRC matches the
// position and status bits it arrived with.
func Verify(position uint32, width int, errorBit, warningBit bool, received uint8) bool {
	return received&crcMask == Transmitted(Encode(position, width, errorBit, warningBit))
}
