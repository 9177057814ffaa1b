// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/config"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/events"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/listener"
)

const maxLogEntries = 200

// presetItem is one row of the preset list
type presetItem struct {
	key    string
	preset config.Preset
}

// Implement list.Item interface
func (p presetItem) Title() string { return p.key }
func (p presetItem) Description() string {
	return fmt.Sprintf("SQ %d, Kramer %d, Cameras %d", len(p.preset.SQ), len(p.preset.Kramer), len(p.preset.Cameras))
}
func (p presetItem) FilterValue() string { return p.key }

// monitorModel is the Bubble Tea model for the listener UI
type monitorModel struct {
	sup      *listener.Supervisor
	feed     *events.Chan
	source   string
	channel  int
	presets  list.Model
	shown    string // preset keys the list was built from
	log      []events.Event
	counters listener.Counters
	state    listener.State
	detail   string
	width    int
	height   int
	quitting bool
}

// Messages
type tickMsg time.Time
type eventMsg events.Event

// formatUptime renders d as "2 hours, 5 minutes, and 1 second"
func formatUptime(d time.Duration) string {
	total := int64(d / time.Second)
	if total <= 0 {
		return "0 seconds"
	}

	units := []struct {
		name string
		size int64
	}{
		{"day", 86400},
		{"hour", 3600},
		{"minute", 60},
		{"second", 1},
	}

	var parts []string
	for _, u := range units {
		n := total / u.size
		total %= u.size
		switch {
		case n == 1:
			parts = append(parts, "1 "+u.name)
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}

	// Join with commas and "and" for last item
	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	return strings.Join(parts[:len(parts)-1], ", ") + ", and " + last
}

func newMonitorModel(sup *listener.Supervisor, feed *events.Chan, cfg *config.Config) monitorModel {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	presetList := list.New(nil, delegate, 34, 10)
	presetList.Title = "Presets (enter to run)"
	presetList.SetShowStatusBar(false)
	presetList.SetShowHelp(false)
	presetList.SetFilteringEnabled(false)

	m := monitorModel{
		sup:     sup,
		feed:    feed,
		source:  fmt.Sprintf("%s:%d", cfg.Settings.SQ.IP, cfg.Settings.SQ.Port),
		channel: sup.Channel,
		presets: presetList,
		width:   80,
		height:  24,
	}
	m.refresh()
	return m
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.waitEvent())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitEvent delivers the next published event to Update
func (m monitorModel) waitEvent() tea.Cmd {
	if m.feed == nil {
		return nil
	}
	return func() tea.Msg {
		return eventMsg(<-m.feed.C)
	}
}

// refresh reloads counters, state and the preset list from the supervisor
func (m *monitorModel) refresh() {
	m.counters = m.sup.Stats().Snapshot()
	m.state = m.sup.State()

	presets := m.sup.Presets().Load()
	names := presets.Names()
	key := strings.Join(names, "\x00")
	if key == m.shown && len(m.presets.Items()) == len(names) {
		return
	}
	items := make([]list.Item, len(names))
	for i, n := range names {
		items[i] = presetItem{key: n, preset: presets[n]}
	}
	m.presets.SetItems(items)
	m.shown = key
}

func (m *monitorModel) addLogEntry(e events.Event) {
	m.log = append(m.log, e)
	// Keep only last N entries
	if len(m.log) > maxLogEntries {
		m.log = m.log[len(m.log)-maxLogEntries:]
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			if item, ok := m.presets.SelectedItem().(presetItem); ok {
				if !m.sup.Trigger(listener.Trigger{Name: item.key, Source: "tui"}) {
					m.addLogEntry(events.Event{Time: time.Now(), Kind: events.KindError, Preset: item.key, Detail: "trigger queue full"})
				}
			}
			return m, nil
		case "r":
			m.sup.Stats().Reset()
			m.refresh()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		listHeight := m.height - 4
		if listHeight < 6 {
			listHeight = 6
		}
		m.presets.SetSize(34, listHeight)

	case tickMsg:
		m.refresh()
		return m, tickCmd()

	case eventMsg:
		e := events.Event(msg)
		if e.Kind == events.KindState {
			m.detail = e.Detail
		}
		m.addLogEntry(e)
		m.refresh()
		return m, m.waitEvent()
	}

	var cmd tea.Cmd
	m.presets, cmd = m.presets.Update(msg)
	return m, cmd
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warningStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("AVCTL - MIDI LISTENER"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("SQ: %s | Channel %d | enter: run preset, r: reset stats, q: quit",
		m.source, m.channel)))
	s.WriteString("\n\n")

	// Connection state
	state := strings.ToUpper(m.state.String())
	switch m.state {
	case listener.StateListening:
		s.WriteString(valueStyle.Render("● " + state))
	case listener.StateBackoff, listener.StateDisconnected:
		s.WriteString(errorStyle.Render("✗ " + state))
	default:
		s.WriteString(warningStyle.Render("⏳ " + state))
	}
	if m.detail != "" {
		s.WriteString(headerStyle.Render(" (" + m.detail + ")"))
	}
	s.WriteString("\n\n")

	// Statistics
	c := m.counters
	var stats strings.Builder
	fmt.Fprintf(&stats, "%s %s   %s %s\n",
		labelStyle.Render("Uptime:"), valueStyle.Render(formatUptime(time.Since(c.StartTime))),
		labelStyle.Render("Reconnects:"), valueStyle.Render(fmt.Sprintf("%d", c.Reconnects)))
	fmt.Fprintf(&stats, "%s %s   %s %s   %s %s\n",
		labelStyle.Render("Triggers:"), valueStyle.Render(fmt.Sprintf("%d", c.Triggers)),
		labelStyle.Render("Unassigned:"), valueStyle.Render(fmt.Sprintf("%d", c.Unassigned)),
		labelStyle.Render("Presets:"), valueStyle.Render(fmt.Sprintf("%d", c.Presets)))
	errs := fmt.Sprintf("%d", c.Errors())
	if c.Errors() > 0 {
		errs = errorStyle.Render(errs)
	} else {
		errs = valueStyle.Render(errs)
	}
	fmt.Fprintf(&stats, "%s %s   %s %s   %s %s",
		labelStyle.Render("Commands:"), valueStyle.Render(fmt.Sprintf("%d", c.Commands)),
		labelStyle.Render("OK:"), valueStyle.Render(fmt.Sprintf("%d", c.Success)),
		labelStyle.Render("Errors:"), errs)
	if c.Errors() > 0 {
		fmt.Fprintf(&stats, " (%s: %d, %s: %d, %s: %d, %s: %d)",
			headerStyle.Render("timeout"), c.Timeouts,
			headerStyle.Render("send"), c.SendErrors,
			headerStyle.Render("rejected"), c.Rejected,
			headerStyle.Render("invalid"), c.Invalid)
	}

	left := lipgloss.JoinVertical(lipgloss.Left, boxStyle.Render(stats.String()), "", labelStyle.Render("Recent Events:"), m.renderLog(headerStyle, errorStyle, warningStyle, boxStyle))
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, m.presets.View(), "  ", left))
	return s.String()
}

func (m monitorModel) renderLog(headerStyle, errorStyle, infoStyle, boxStyle lipgloss.Style) string {
	// Reserve space for header and stats
	logHeight := m.height - 14
	if logHeight < 5 {
		logHeight = 5
	}
	start := len(m.log) - logHeight
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	if len(m.log) == 0 {
		b.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, e := range m.log[start:] {
		line := events.FormatEvent(e)
		failed := e.Kind == events.KindError || e.Status == "timeout" || e.Status == "send-error" ||
			e.Status == "rejected" || e.Status == "partial" || e.Status == "backoff"
		if failed {
			b.WriteString(errorStyle.Render("✗ " + line))
		} else {
			b.WriteString(infoStyle.Render("ℹ " + line))
		}
		b.WriteString("\n")
	}

	width := m.width - 40
	if width < 40 {
		width = 40
	}
	return boxStyle.Width(width).Render(strings.TrimRight(b.String(), "\n"))
}
