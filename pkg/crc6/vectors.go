// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crc6

import (
	"fmt"
	"strings"
)

// VectorWidth is the data width of the FPGA test bench vector table
const VectorWidth = 24

// Vector is one checker test bench entry
type Vector struct {
	Data        uint32
	Width       int
	CRC         uint8
	Description string
}

// DefaultVectorPositions are the patterns used by the data checker test bench
var DefaultVectorPositions = []struct {
	Data        uint32
	Description string
}{
	{0x000000, "All zeros"},
	{0xFFFFFF, "All ones"},
	{0x123456, "Test pattern 1"},
	{0xABCDEF, "Test pattern 2"},
	{0x654321, "Test pattern 3"},
	{0xFEDCBA, "Test pattern 4"},
}

// NewVectors computes data-only checksums for the default patterns at width
func NewVectors(width int) []Vector {
	width = clampWidth(width)
	vectors := make([]Vector, 0, len(DefaultVectorPositions))
	for _, p := range DefaultVectorPositions {
		data := maskPosition(p.Data, width)
		vectors = append(vectors, Vector{
			Data:        data,
			Width:       width,
			CRC:         Checksum(data, width),
			Description: p.Description,
		})
	}
	return vectors
}

// Binary returns the CRC as a 6-character binary string
func (v Vector) Binary() string {
	return fmt.Sprintf("%06b", v.CRC)
}

// String returns a one-line human-readable summary
func (v Vector) String() string {
	return fmt.Sprintf("Data: 0x%0*X (%-20s) => CRC: 0x%02X = %s",
		hexDigits(v.Width), v.Data, v.Description, v.CRC, v.Binary())
}

func hexDigits(width int) int {
	return (width + 3) / 4
}

// FormatVHDL renders vectors as a VHDL constant array for the test bench
func FormatVHDL(vectors []Vector) string {
	var s strings.Builder
	s.WriteString("constant TEST_VECTORS : test_vector_array_t := (\n")
	for i, v := range vectors {
		sep := ","
		if i == len(vectors)-1 {
			sep = ""
		}
		fmt.Fprintf(&s, "    (position => X\"%0*X\", crc => \"%s\")%s  -- %s\n",
			hexDigits(v.Width), v.Data, v.Binary(), sep, v.Description)
	}
	s.WriteString(");\n")
	return s.String()
}
