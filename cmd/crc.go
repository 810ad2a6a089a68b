// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/bissmon/pkg/crc6"
)

var (
	crcWidth     int
	vectorsWidth int
	crcError     bool
	crcWarning   bool
)

var crcCmd = &cobra.Command{
	Use:   "crc",
	Short: "CRC-6 codec tools",
	Long: `Compute the encoder's CRC-6 (polynomial 0x43, x^6+x+1).

The remainder covers position[width-1:0] followed by the inverted error and
warning bits, MSB first. The transmitted CRC is the bitwise complement of the
remainder. Positions accept decimal or 0x-prefixed hex.`,
}

var crcEncodeCmd = &cobra.Command{
	Use:   "encode <position>",
	Short: "Print the remainder and transmitted CRC for a position",
	Args:  cobra.ExactArgs(1),
	RunE:  runCRCEncode,
}

var crcVerifyCmd = &cobra.Command{
	Use:   "verify <position> <crc>",
	Short: "Check a received (transmitted form) CRC against a position",
	Long: `Check a received CRC against a position.

Exit codes:
  0 - CRC matches
  1 - CRC mismatch`,
	Args: cobra.ExactArgs(2),
	RunE: runCRCVerify,
}

var crcVectorsCmd = &cobra.Command{
	Use:   "vectors",
	Short: "Print the hardware test bench vector table (VHDL)",
	Args:  cobra.NoArgs,
	RunE:  runCRCVectors,
}

func init() {
	rootCmd.AddCommand(crcCmd)
	crcCmd.AddCommand(crcEncodeCmd, crcVerifyCmd, crcVectorsCmd)

	for _, c := range []*cobra.Command{crcEncodeCmd, crcVerifyCmd} {
		c.Flags().IntVar(&crcWidth, "width", crc6.DefaultWidth, "Position bit width (1-32)")
		c.Flags().BoolVar(&crcError, "error", false, "Decoded error bit (active high)")
		c.Flags().BoolVar(&crcWarning, "warning", false, "Decoded warning bit (active high)")
	}
	crcVectorsCmd.Flags().IntVar(&vectorsWidth, "width", crc6.VectorWidth, "Data bit width (1-32)")
}

func parsePosition(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid position %q: %w", s, err)
	}
	return uint32(v), nil
}

func validateWidth(width int) error {
	return crc6.Params{Width: width}.Validate()
}

func runCRCEncode(cmd *cobra.Command, args []string) error {
	if err := validateWidth(crcWidth); err != nil {
		return err
	}
	position, err := parsePosition(args[0])
	if err != nil {
		return err
	}

	r := crc6.Encode(position, crcWidth, crcError, crcWarning)
	t := crc6.Transmitted(r)
	fmt.Printf("Position:    0x%08X (%d bits)\n", position, crcWidth)
	fmt.Printf("Error:       %t\n", crcError)
	fmt.Printf("Warning:     %t\n", crcWarning)
	fmt.Printf("Remainder:   0x%02X (%06b)\n", r, r)
	fmt.Printf("Transmitted: 0x%02X (%06b)\n", t, t)
	return nil
}

func runCRCVerify(cmd *cobra.Command, args []string) error {
	if err := validateWidth(crcWidth); err != nil {
		return err
	}
	position, err := parsePosition(args[0])
	if err != nil {
		return err
	}
	received, err := strconv.ParseUint(args[1], 0, 8)
	if err != nil || received > 0x3F {
		return fmt.Errorf("invalid crc %q: want 0-63", args[1])
	}

	if crc6.Verify(position, crcWidth, crcError, crcWarning, uint8(received)) {
		fmt.Printf("OK: 0x%02X\n", received)
		return nil
	}

	want := crc6.Transmitted(crc6.Encode(position, crcWidth, crcError, crcWarning))
	fmt.Fprintf(os.Stderr, "MISMATCH: received 0x%02X, expected 0x%02X\n", received, want)
	os.Exit(1)
	return nil
}

func runCRCVectors(cmd *cobra.Command, args []string) error {
	if err := validateWidth(vectorsWidth); err != nil {
		return err
	}
	vectors := crc6.NewVectors(vectorsWidth)
	for _, v := range vectors {
		fmt.Fprintf(os.Stderr, "%s\n", v)
	}
	fmt.Print(crc6.FormatVHDL(vectors))
	return nil
}
