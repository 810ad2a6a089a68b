// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/bissmon/pkg/crc6"
	"github.com/Thermoquad/bissmon/pkg/transport"
)

// PrimaryName is the link label used in logs and metrics
const PrimaryName = "primary"

// minTelemetryFields is position, error bit, warning bit and CRC-fail flag
const minTelemetryFields = 4

// PrimarySnapshot is one decoded telemetry line. The flag fields are passed
// through as reported and are not range checked.
type PrimarySnapshot struct {
	Position   int64
	ErrorBit   int64
	WarningBit int64
	CRCFail    int64

	// Transmitted CRC from an optional fifth field
	CRC    int64
	HasCRC bool

	// Local recomputation result; set only when verification is enabled
	// and the line carried a CRC
	LocalCRCChecked  bool
	LocalCRCMismatch bool
}

// ParseTelemetry decodes "position,error,warning,crc_fail[,crc]". Extra
// fields are ignored; a fifth field that is not an integer is ignored too.
func ParseTelemetry(line string) (PrimarySnapshot, bool) {
	fields := strings.Split(line, ",")
	if len(fields) < minTelemetryFields {
		return PrimarySnapshot{}, false
	}

	var values [minTelemetryFields]int64
	for i := range values {
		v, err := strconv.ParseInt(strings.TrimSpace(fields[i]), 10, 64)
		if err != nil {
			return PrimarySnapshot{}, false
		}
		values[i] = v
	}

	snap := PrimarySnapshot{
		Position:   values[0],
		ErrorBit:   values[1],
		WarningBit: values[2],
		CRCFail:    values[3],
	}
	if len(fields) > minTelemetryFields {
		if crc, err := strconv.ParseInt(strings.TrimSpace(fields[minTelemetryFields]), 10, 64); err == nil {
			snap.CRC = crc
			snap.HasCRC = true
		}
	}
	return snap, true
}

// PrimaryLink receives the encoder telemetry stream
type PrimaryLink struct {
	*Link[PrimarySnapshot]
	cfg PrimaryConfig
}

// NewPrimary creates an idle primary link
func NewPrimary(cfg PrimaryConfig, opts ...Option) *PrimaryLink {
	p := &PrimaryLink{cfg: cfg}
	p.Link = newLink[PrimarySnapshot](PrimaryName, cfg.Config, p.run, opts)
	return p
}

// Config returns the link configuration
func (p *PrimaryLink) Config() PrimaryConfig {
	return p.cfg
}

func (p *PrimaryLink) run(ctx context.Context, tr transport.Transport) {
	for ctx.Err() == nil {
		line, err := tr.ReadLine()
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			p.recordError(err)
			if !sleep(ctx, p.cfg.ErrorBackoff) {
				return
			}
			continue
		}
		p.handleLine(line, time.Now())
	}
}

func (p *PrimaryLink) handleLine(line string, now time.Time) {
	// Noise on the line is expected; rejected lines are dropped quietly
	snap, ok := ParseTelemetry(line)
	if !ok {
		return
	}

	if p.cfg.VerifyCRC && snap.HasCRC {
		snap.LocalCRCChecked = true
		snap.LocalCRCMismatch = snap.CRC < 0 || snap.CRC > 0x3F || !crc6.Verify(
			uint32(snap.Position),
			p.cfg.CRC.Width,
			snap.ErrorBit != 0,
			snap.WarningBit != 0,
			uint8(snap.CRC),
		)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.acceptLocked(snap, snap.Position, now)
	if snap.CRCFail != 0 {
		p.countLocked(eventCRCFailure)
	}
	if snap.LocalCRCMismatch {
		p.countLocked(eventCRCMismatch)
	}
}
