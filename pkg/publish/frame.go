// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package publish streams link snapshots to WebSocket clients as CBOR
// frames.
//
// Frames use integer map keys. A link without data contributes no field at
// all, so consumers can tell "no data yet" apart from a zero position.
package publish

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/bissmon/pkg/link"
)

// FrameVersion is the current frame layout
const FrameVersion = 1

// Frame is one published observation of both links
type Frame struct {
	Version            uint8           `cbor:"0,keyasint"`
	Time               int64           `cbor:"1,keyasint"` // unix milliseconds
	PrimaryConnected   bool            `cbor:"2,keyasint"`
	SecondaryConnected bool            `cbor:"3,keyasint"`
	Primary            *PrimaryFrame   `cbor:"4,keyasint,omitempty"`
	Secondary          *SecondaryFrame `cbor:"5,keyasint,omitempty"`
	Stability          *StabilityFrame `cbor:"6,keyasint,omitempty"`
}

// PrimaryFrame carries the latest telemetry
type PrimaryFrame struct {
	Position   int64 `cbor:"0,keyasint"`
	ErrorBit   int64 `cbor:"1,keyasint"`
	WarningBit int64 `cbor:"2,keyasint"`
	CRCFail    int64 `cbor:"3,keyasint"`

	// Present only when the line carried a CRC / local check ran
	CRC              *int64 `cbor:"4,keyasint,omitempty"`
	LocalCRCMismatch *bool  `cbor:"5,keyasint,omitempty"`
}

// SecondaryFrame carries the latest stage position
type SecondaryFrame struct {
	Position int64 `cbor:"0,keyasint"`
	Raw      int64 `cbor:"1,keyasint"`
}

// StabilityFrame carries the homing phase
type StabilityFrame struct {
	Phase   string `cbor:"0,keyasint"`
	Message string `cbor:"1,keyasint,omitempty"`
}

// NewPrimaryFrame converts a primary snapshot
func NewPrimaryFrame(s link.PrimarySnapshot) *PrimaryFrame {
	f := &PrimaryFrame{
		Position:   s.Position,
		ErrorBit:   s.ErrorBit,
		WarningBit: s.WarningBit,
		CRCFail:    s.CRCFail,
	}
	if s.HasCRC {
		crc := s.CRC
		f.CRC = &crc
	}
	if s.LocalCRCChecked {
		mismatch := s.LocalCRCMismatch
		f.LocalCRCMismatch = &mismatch
	}
	return f
}

// NewSecondaryFrame converts a secondary snapshot
func NewSecondaryFrame(s link.SecondarySnapshot) *SecondaryFrame {
	return &SecondaryFrame{Position: s.Position, Raw: s.Raw}
}

// NewStabilityFrame converts a stability state
func NewStabilityFrame(s link.StabilityState) *StabilityFrame {
	return &StabilityFrame{Phase: s.Phase.String(), Message: s.Message}
}

// Timestamp returns the frame time
func (f Frame) Timestamp() time.Time {
	return time.UnixMilli(f.Time)
}

// Encode serializes the frame
func (f Frame) Encode() ([]byte, error) {
	data, err := cbor.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

// DecodeFrame parses a frame produced by Encode
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("empty CBOR payload")
	}
	var f Frame
	if err := cbor.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	if f.Version != FrameVersion {
		return Frame{}, fmt.Errorf("unsupported frame version: %d", f.Version)
	}
	return f, nil
}
