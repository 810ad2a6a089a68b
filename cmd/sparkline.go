// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"strings"

	"github.com/Thermoquad/bissmon/pkg/link"
)

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// sparkline renders the last width samples scaled between their minimum
// and maximum. A flat series renders at the lowest level.
func sparkline(samples []link.Sample, width int) string {
	if width <= 0 || len(samples) == 0 {
		return ""
	}
	if len(samples) > width {
		samples = samples[len(samples)-width:]
	}

	lo, hi, _ := link.Span(samples)
	span := hi - lo

	var b strings.Builder
	for _, s := range samples {
		level := 0
		if span > 0 {
			level = int((s.Position - lo) * int64(len(sparkLevels)-1) / span)
		}
		b.WriteRune(sparkLevels[level])
	}
	return b.String()
}
