// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/bissmon/pkg/link"
)

// historyWindow is how far back the monitor plots positions
const historyWindow = 10 * time.Second

var monitorLogFile string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive terminal monitor",
	Long: `Show both links live: primary position with error, warning and CRC
indicators, secondary position with homing phase, the last 10 seconds of
positions and per-link statistics.

Keys:
  r  home (REF)         z  go to zero
  s  start              x  stop
  g  move to raw count  c  clear history
  ?  toggle help        q  quit

Log output would corrupt the screen, so it is discarded unless --log-file
is given.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorLogFile, "log-file", "", "Write logs to this file while the monitor runs")
}

//////////////////////////////////////////////////////////////
// Key Bindings
//////////////////////////////////////////////////////////////

type monitorKeyMap struct {
	Home  key.Binding
	Zero  key.Binding
	Start key.Binding
	Stop  key.Binding
	Move  key.Binding
	Clear key.Binding
	Help  key.Binding
	Quit  key.Binding
}

func (k monitorKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Home, k.Zero, k.Start, k.Stop, k.Help, k.Quit}
}

func (k monitorKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Home, k.Zero, k.Move},
		{k.Start, k.Stop, k.Clear},
		{k.Help, k.Quit},
	}
}

func newMonitorKeyMap() monitorKeyMap {
	return monitorKeyMap{
		Home:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "home")),
		Zero:  key.NewBinding(key.WithKeys("z"), key.WithHelp("z", "go zero")),
		Start: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
		Stop:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
		Move:  key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "move to")),
		Clear: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear history")),
		Help:  key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

//////////////////////////////////////////////////////////////
// Model
//////////////////////////////////////////////////////////////

// Event log entry
type eventEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

type monitorTickMsg time.Time

type monitorModel struct {
	links    *links
	connInfo []string
	interval time.Duration

	keys      monitorKeyMap
	help      help.Model
	moveInput textinput.Model
	entering  bool

	events        []eventEntry
	maxLogEntries int
	lastPhase     link.StabilityState
	lastErrors    map[string]string

	width    int
	height   int
	quitting bool
}

func newMonitorModel(l *links, interval time.Duration) monitorModel {
	ti := textinput.New()
	ti.Placeholder = strconv.FormatInt(link.DefaultPositionOffset, 10)
	ti.CharLimit = 12
	ti.Width = 14
	ti.Prompt = "G"

	return monitorModel{
		links:         l,
		connInfo:      l.describe(),
		interval:      interval,
		keys:          newMonitorKeyMap(),
		help:          help.New(),
		moveInput:     ti,
		maxLogEntries: 100,
		lastErrors:    make(map[string]string),
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return m.tick()
}

func (m monitorModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.entering {
			return m.updateMoveInput(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case monitorTickMsg:
		m.observe(time.Time(msg))
		return m, m.tick()
	}
	return m, nil
}

func (m monitorModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := m.links.secondary

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, m.keys.Clear):
		if m.links.primary != nil {
			m.links.primary.ClearHistory()
		}
		if s != nil {
			s.ClearHistory()
		}
		m.addLogEntry("History cleared", false)

	case key.Matches(msg, m.keys.Home):
		if m.requireSecondary() {
			s.Home()
			m.addLogEntry("Sent REF", false)
		}

	case key.Matches(msg, m.keys.Zero):
		if m.requireSecondary() {
			s.GoZero()
			m.addLogEntry("Sent "+s.Config().GoZeroCommand(), false)
		}

	case key.Matches(msg, m.keys.Start):
		if m.requireSecondary() {
			s.Start()
			m.addLogEntry("Sent "+s.Config().StartToken, false)
		}

	case key.Matches(msg, m.keys.Stop):
		if m.requireSecondary() {
			s.Stop()
			m.addLogEntry("Sent "+s.Config().StopToken, false)
		}

	case key.Matches(msg, m.keys.Move):
		if m.requireSecondary() {
			m.entering = true
			m.moveInput.SetValue("")
			return m, m.moveInput.Focus()
		}
	}
	return m, nil
}

func (m monitorModel) updateMoveInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.entering = false
		m.moveInput.Blur()
		return m, nil

	case "enter":
		m.entering = false
		m.moveInput.Blur()
		count, err := strconv.ParseInt(strings.TrimSpace(m.moveInput.Value()), 10, 64)
		if err != nil {
			m.addLogEntry(fmt.Sprintf("Invalid count %q", m.moveInput.Value()), true)
			return m, nil
		}
		m.links.secondary.MoveTo(count)
		m.addLogEntry("Sent "+link.MoveCommand(count), false)
		return m, nil
	}

	var cmd tea.Cmd
	m.moveInput, cmd = m.moveInput.Update(msg)
	return m, cmd
}

func (m *monitorModel) requireSecondary() bool {
	if m.links.secondary == nil {
		m.addLogEntry("No secondary connected", true)
		return false
	}
	return true
}

// observe turns state changes seen since the last tick into log entries
func (m *monitorModel) observe(now time.Time) {
	if p := m.links.primary; p != nil {
		m.noteError(p.Name(), p.LastError())
	}
	if s := m.links.secondary; s != nil {
		m.noteError(s.Name(), s.LastError())
		st := s.Stability()
		if st.Phase != m.lastPhase.Phase || st.Message != m.lastPhase.Message {
			m.addLogEntry("Stage "+st.String(), st.Phase == link.PhaseError)
			m.lastPhase = st
		}
	}
}

func (m *monitorModel) noteError(name string, err error) {
	if err == nil {
		return
	}
	if msg := err.Error(); m.lastErrors[name] != msg {
		m.lastErrors[name] = msg
		m.addLogEntry(name+": "+msg, true)
	}
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.events = append(m.events, eventEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.events) > m.maxLogEntries {
		m.events = m.events[len(m.events)-m.maxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// indicator renders a flag as green when clear and red when set
func indicator(name string, set bool) string {
	if set {
		return errorStyle.Render("● " + name)
	}
	return valueStyle.Render("● " + name)
}

func phaseStyle(p link.Phase) lipgloss.Style {
	switch p {
	case link.PhaseStable:
		return valueStyle
	case link.PhaseError:
		return errorStyle
	case link.PhaseSentHoming, link.PhaseWaitingStability:
		return warningStyle
	default:
		return headerStyle
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("BISSMON - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(strings.Join(m.connInfo, " | ")))
	s.WriteString("\n\n")

	now := time.Now()
	plotWidth := max(m.width-20, 10)

	if p := m.links.primary; p != nil {
		s.WriteString(boxStyle.Render(m.renderPrimary(p, now, plotWidth)))
		s.WriteString("\n")
	}
	if sec := m.links.secondary; sec != nil {
		s.WriteString(boxStyle.Render(m.renderSecondary(sec, now, plotWidth)))
		s.WriteString("\n")
	}

	if m.entering {
		s.WriteString(labelStyle.Render("Move to raw count: "))
		s.WriteString(m.moveInput.View())
		s.WriteString(headerStyle.Render("  (enter to send, esc to cancel)"))
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(max(m.width-4, 20)).Render(m.renderEvents()))
	s.WriteString("\n")
	s.WriteString(m.help.View(m.keys))

	return s.String()
}

func (m monitorModel) renderPrimary(p *link.PrimaryLink, now time.Time, plotWidth int) string {
	v := p.View()
	stats := p.Stats()

	var c strings.Builder
	c.WriteString(labelStyle.Render("PRIMARY"))
	c.WriteString("  ")
	if v.HasSnapshot {
		snap := v.Snapshot
		c.WriteString(valueStyle.Render(fmt.Sprintf("%d", snap.Position)))
		c.WriteString("\n")
		c.WriteString(indicator("ERROR", snap.ErrorBit != 0))
		c.WriteString("  ")
		c.WriteString(indicator("WARNING", snap.WarningBit != 0))
		c.WriteString("  ")
		c.WriteString(indicator("CRC", snap.CRCFail != 0))
		if snap.LocalCRCChecked {
			c.WriteString("  ")
			c.WriteString(indicator("LOCAL CRC", snap.LocalCRCMismatch))
		}
	} else {
		c.WriteString(warningStyle.Render("no data"))
	}
	c.WriteString("\n")
	c.WriteString(renderHistory(v.History, now, plotWidth))
	c.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		labelStyle.Render("Samples:"), valueStyle.Render(fmt.Sprintf("%d", stats.Samples)),
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f/s", stats.SampleRate)),
		labelStyle.Render("CRC fail:"), countStyle(stats.CRCFailures).Render(fmt.Sprintf("%d", stats.CRCFailures)),
	))
	if stats.CRCMismatches > 0 {
		c.WriteString(fmt.Sprintf("   %s %s",
			labelStyle.Render("Mismatch:"), errorStyle.Render(fmt.Sprintf("%d", stats.CRCMismatches))))
	}
	return c.String()
}

func (m monitorModel) renderSecondary(sec *link.SecondaryLink, now time.Time, plotWidth int) string {
	v := sec.View()
	st := sec.Stability()
	stats := sec.Stats()

	var c strings.Builder
	c.WriteString(labelStyle.Render("SECONDARY"))
	c.WriteString("  ")
	if v.HasSnapshot {
		c.WriteString(valueStyle.Render(fmt.Sprintf("%d", v.Snapshot.Position)))
		c.WriteString(headerStyle.Render(fmt.Sprintf(" (raw %d)", v.Snapshot.Raw)))
	} else {
		c.WriteString(warningStyle.Render("no data"))
	}
	c.WriteString("  ")
	c.WriteString(phaseStyle(st.Phase).Render(st.String()))
	c.WriteString("\n")
	c.WriteString(renderHistory(v.History, now, plotWidth))
	c.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		labelStyle.Render("Samples:"), valueStyle.Render(fmt.Sprintf("%d", stats.Samples)),
		labelStyle.Render("Timeouts:"), countStyle(stats.ReplyTimeouts).Render(fmt.Sprintf("%d", stats.ReplyTimeouts)),
		labelStyle.Render("Errors:"), countStyle(stats.LoopErrors).Render(fmt.Sprintf("%d", stats.LoopErrors)),
	))
	return c.String()
}

func countStyle(n uint64) lipgloss.Style {
	if n > 0 {
		return errorStyle
	}
	return valueStyle
}

// renderHistory draws the recent positions with their range
func renderHistory(samples []link.Sample, now time.Time, width int) string {
	recent := link.Recent(samples, now, historyWindow)
	lo, hi, ok := link.Span(recent)
	if !ok {
		return headerStyle.Render("(no samples in the last 10s)") + "\n"
	}
	return fmt.Sprintf("%s %s\n",
		valueStyle.Render(sparkline(recent, width)),
		headerStyle.Render(fmt.Sprintf("[%d..%d]", lo, hi)),
	)
}

func (m monitorModel) renderEvents() string {
	logHeight := max(m.height-22, 3)

	if len(m.events) == 0 {
		return headerStyle.Render("  (no events yet)")
	}

	var c strings.Builder
	start := max(len(m.events)-logHeight, 0)
	for _, entry := range m.events[start:] {
		timestamp := entry.timestamp.Format("15:04:05.000")
		if entry.isError {
			c.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message)))
		} else {
			c.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), warningStyle.Render("ℹ "+entry.message)))
		}
	}
	return strings.TrimSuffix(c.String(), "\n")
}

//////////////////////////////////////////////////////////////
// Command
//////////////////////////////////////////////////////////////

func runMonitor(cmd *cobra.Command, args []string) error {
	var logOut io.Writer = io.Discard
	if monitorLogFile != "" {
		f, err := os.OpenFile(monitorLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}

	// links log from their workers; keep that off the screen
	logger = setupLogger(settings.Log.Level, settings.Log.Format, logOut)

	l, err := openLinks(nil)
	if err != nil {
		return err
	}
	defer l.close()

	p := tea.NewProgram(newMonitorModel(l, settings.Serve.Interval), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
