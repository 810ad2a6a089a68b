// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"time"
)

// Statistics tracks per-link sample and error counts
type Statistics struct {
	StartTime      time.Time
	LastSampleTime time.Time

	// Counters
	Samples       uint64
	ReplyTimeouts uint64
	LoopErrors    uint64
	CRCFailures   uint64 // reported by the device
	CRCMismatches uint64 // found by local recomputation
	Commands      uint64

	// Rates (calculated)
	SampleRate float64 // samples/sec
	ErrorRate  float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime: time.Now(),
	}
}

// CalculateRates calculates sample and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.SampleRate = float64(s.Samples) / elapsed
		s.ErrorRate = float64(s.LoopErrors+s.ReplyTimeouts) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Samples:         %8d\n", s.Samples)

	if s.ReplyTimeouts > 0 {
		result += fmt.Sprintf("Reply Timeouts:  %8d\n", s.ReplyTimeouts)
	}
	if s.LoopErrors > 0 {
		result += fmt.Sprintf("Loop Errors:     %8d\n", s.LoopErrors)
	}
	if s.CRCFailures > 0 || s.CRCMismatches > 0 {
		var failPercent float64
		if s.Samples > 0 {
			failPercent = float64(s.CRCFailures) * 100.0 / float64(s.Samples)
		}
		result += fmt.Sprintf("CRC Fail (dev):  %8d (%.1f%%)\n", s.CRCFailures, failPercent)
		if s.CRCMismatches > 0 {
			result += fmt.Sprintf("CRC Mismatch:    %8d\n", s.CRCMismatches)
		}
	}
	if s.Commands > 0 {
		result += fmt.Sprintf("Commands Sent:   %8d\n", s.Commands)
	}

	result += fmt.Sprintf("Sample Rate:     %8.1f samples/sec\n", s.SampleRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = Statistics{StartTime: time.Now()}
}
