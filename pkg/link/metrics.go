// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes link activity to Prometheus. Every series carries a
// "link" label. A nil *Metrics is valid and records nothing.
type Metrics struct {
	SamplesAccepted *prometheus.CounterVec
	ReplyTimeouts   *prometheus.CounterVec
	LoopErrors      *prometheus.CounterVec
	CRCFailures     *prometheus.CounterVec
	CRCMismatches   *prometheus.CounterVec
	CommandsSent    *prometheus.CounterVec
	Connected       *prometheus.GaugeVec
	Position        *prometheus.GaugeVec
	Stable          *prometheus.GaugeVec
}

// NewMetrics creates the link metrics and registers them on reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bissmon",
				Subsystem: "link",
				Name:      name,
				Help:      help,
			},
			[]string{"link"},
		)
	}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "bissmon",
				Subsystem: "link",
				Name:      name,
				Help:      help,
			},
			[]string{"link"},
		)
	}

	m := &Metrics{
		SamplesAccepted: counter("samples_accepted_total", "Total number of accepted position samples"),
		ReplyTimeouts:   counter("reply_timeouts_total", "Total number of position queries without a valid reply"),
		LoopErrors:      counter("loop_errors_total", "Total number of transport errors caught by the worker loop"),
		CRCFailures:     counter("crc_failures_total", "Total number of samples with the device CRC-fail flag set"),
		CRCMismatches:   counter("crc_mismatches_total", "Total number of samples failing local CRC recomputation"),
		CommandsSent:    counter("commands_sent_total", "Total number of queued commands written to the device"),
		Connected:       gauge("connected", "Link state (0=idle, 1=running)"),
		Position:        gauge("position", "Last accepted position"),
		Stable:          gauge("stable", "Stability state (1=stable after homing)"),
	}

	for _, c := range []prometheus.Collector{
		m.SamplesAccepted, m.ReplyTimeouts, m.LoopErrors,
		m.CRCFailures, m.CRCMismatches, m.CommandsSent,
		m.Connected, m.Position, m.Stable,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register link metrics: %w", err)
		}
	}
	return m, nil
}

// event identifies a counted link event
type event int

const (
	eventAccepted event = iota
	eventTimeout
	eventLoopError
	eventCRCFailure
	eventCRCMismatch
	eventCommand
)

func (m *Metrics) counter(e event) *prometheus.CounterVec {
	switch e {
	case eventAccepted:
		return m.SamplesAccepted
	case eventTimeout:
		return m.ReplyTimeouts
	case eventLoopError:
		return m.LoopErrors
	case eventCRCFailure:
		return m.CRCFailures
	case eventCRCMismatch:
		return m.CRCMismatches
	case eventCommand:
		return m.CommandsSent
	default:
		return nil
	}
}

func (m *Metrics) inc(e event, link string) {
	if m == nil {
		return
	}
	if vec := m.counter(e); vec != nil {
		vec.WithLabelValues(link).Inc()
	}
}

func (m *Metrics) setConnected(link string, connected bool) {
	if m == nil {
		return
	}
	m.Connected.WithLabelValues(link).Set(boolGauge(connected))
}

func (m *Metrics) setPosition(link string, position int64) {
	if m == nil {
		return
	}
	m.Position.WithLabelValues(link).Set(float64(position))
}

func (m *Metrics) setStable(link string, stable bool) {
	if m == nil {
		return
	}
	m.Stable.WithLabelValues(link).Set(boolGauge(stable))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
