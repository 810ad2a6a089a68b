// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// bissmon - BiSS Encoder Calibration Monitor
//
// A CLI tool for monitoring a BiSS position encoder's telemetry alongside a
// motorized test stage, and for computing the encoder's CRC-6.

package main

import (
	"os"

	"github.com/Thermoquad/bissmon/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
