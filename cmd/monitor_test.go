// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/bissmon/pkg/link"
)

func keyPress(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func newTestMonitor() (monitorModel, *link.SecondaryLink) {
	s := link.NewSecondary(link.DefaultSecondaryConfig())
	l := &links{secondary: s}
	return newMonitorModel(l, 100*time.Millisecond), s
}

func TestSparkline(t *testing.T) {
	samples := []link.Sample{{Position: 0}, {Position: 7}, {Position: 14}}
	assert.Equal(t, "▁▄█", sparkline(samples, 10))
	assert.Equal(t, "▁█", sparkline(samples, 2))
	assert.Equal(t, "▁▁", sparkline([]link.Sample{{Position: 5}, {Position: 5}}, 10))
	assert.Empty(t, sparkline(nil, 10))
	assert.Empty(t, sparkline(samples, 0))
}

func TestMonitorKeysQueueCommands(t *testing.T) {
	m, s := newTestMonitor()

	for _, r := range "rzsx" {
		next, _ := m.Update(keyPress(r))
		m = next.(monitorModel)
	}
	assert.Equal(t, 4, s.Pending())
	assert.Len(t, m.events, 4)
}

func TestMonitorMoveInput(t *testing.T) {
	m, s := newTestMonitor()

	next, _ := m.Update(keyPress('g'))
	m = next.(monitorModel)
	require.True(t, m.entering)

	for _, r := range "1234" {
		next, _ = m.Update(keyPress(r))
		m = next.(monitorModel)
	}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(monitorModel)

	assert.False(t, m.entering)
	assert.Equal(t, 1, s.Pending())
	assert.Equal(t, "Sent G1234", m.events[len(m.events)-1].message)
}

func TestMonitorMoveInputInvalid(t *testing.T) {
	m, s := newTestMonitor()

	next, _ := m.Update(keyPress('g'))
	m = next.(monitorModel)
	next, _ = m.Update(keyPress('x'))
	m = next.(monitorModel)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(monitorModel)

	assert.Zero(t, s.Pending())
	assert.True(t, m.events[len(m.events)-1].isError)
}

func TestMonitorWithoutSecondary(t *testing.T) {
	m := newMonitorModel(&links{primary: link.NewPrimary(link.DefaultPrimaryConfig())}, time.Second)

	next, _ := m.Update(keyPress('r'))
	m = next.(monitorModel)
	require.Len(t, m.events, 1)
	assert.True(t, m.events[0].isError)
	assert.NotEmpty(t, m.View())
}

func TestMonitorQuit(t *testing.T) {
	m, _ := newTestMonitor()
	next, cmd := m.Update(keyPress('q'))
	assert.True(t, next.(monitorModel).quitting)
	assert.NotNil(t, cmd)
}

func TestMonitorNoteErrorOnce(t *testing.T) {
	m, _ := newTestMonitor()
	m.noteError("primary", errors.New("boom"))
	m.noteError("primary", errors.New("boom"))
	m.noteError("primary", nil)
	assert.Len(t, m.events, 1)
}

func TestMonitorEventLogBounded(t *testing.T) {
	m, _ := newTestMonitor()
	for i := 0; i < 150; i++ {
		m.addLogEntry("event", false)
	}
	assert.Len(t, m.events, m.maxLogEntries)
}

func TestFlagged(t *testing.T) {
	assert.False(t, flagged(link.PrimarySnapshot{Position: 5}))
	assert.True(t, flagged(link.PrimarySnapshot{ErrorBit: 1}))
	assert.True(t, flagged(link.PrimarySnapshot{WarningBit: 1}))
	assert.True(t, flagged(link.PrimarySnapshot{CRCFail: 1}))
	assert.True(t, flagged(link.PrimarySnapshot{LocalCRCMismatch: true}))
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	l := setupLogger("warn", "json", &buf)
	l.Info("hidden")
	l.Warn("shown", "k", 1)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"service":"bissmon"`)
}
