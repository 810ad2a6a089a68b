// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"strings"
	"time"
)

// FormatPrimary renders a primary snapshot as one log line
func FormatPrimary(s PrimarySnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "pos=%d err=%d warn=%d crc_fail=%d", s.Position, s.ErrorBit, s.WarningBit, s.CRCFail)
	if s.HasCRC {
		fmt.Fprintf(&b, " crc=%d", s.CRC)
	}
	if s.LocalCRCChecked {
		if s.LocalCRCMismatch {
			b.WriteString(" local_crc=MISMATCH")
		} else {
			b.WriteString(" local_crc=ok")
		}
	}
	return b.String()
}

// FormatSecondary renders a secondary snapshot and stability state
func FormatSecondary(s SecondarySnapshot, st StabilityState) string {
	return fmt.Sprintf("pos=%d raw=%d phase=%s", s.Position, s.Raw, st)
}

// Recent returns the samples no older than window relative to now
func Recent(samples []Sample, now time.Time, window time.Duration) []Sample {
	cutoff := now.Add(-window)
	for i, s := range samples {
		if !s.Time.Before(cutoff) {
			return samples[i:]
		}
	}
	return nil
}

// Span returns the minimum and maximum positions; ok is false when empty
func Span(samples []Sample) (lo, hi int64, ok bool) {
	if len(samples) == 0 {
		return 0, 0, false
	}
	lo, hi = samples[0].Position, samples[0].Position
	for _, s := range samples[1:] {
		lo = min(lo, s.Position)
		hi = max(hi, s.Position)
	}
	return lo, hi, true
}
