// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publish

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes publisher activity. A nil *Metrics records nothing.
type Metrics struct {
	Clients        prometheus.Gauge
	FramesSent     prometheus.Counter
	ClientsDropped prometheus.Counter
}

// NewMetrics creates the publisher metrics and registers them on reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bissmon",
			Subsystem: "publish",
			Name:      "clients",
			Help:      "Number of connected WebSocket clients",
		}),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bissmon",
			Subsystem: "publish",
			Name:      "frames_sent_total",
			Help:      "Total number of frames queued to clients",
		}),
		ClientsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bissmon",
			Subsystem: "publish",
			Name:      "clients_dropped_total",
			Help:      "Total number of clients disconnected for falling behind",
		}),
	}

	for _, c := range []prometheus.Collector{m.Clients, m.FramesSent, m.ClientsDropped} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register publish metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) setClients(n int) {
	if m == nil {
		return
	}
	m.Clients.Set(float64(n))
}

func (m *Metrics) frameSent() {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
}

func (m *Metrics) clientDropped() {
	if m == nil {
		return
	}
	m.ClientsDropped.Inc()
}
