package tui

import (
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/opentcu/configtool/internal/updater"
)

// Update handles incoming messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case TickMsg:
		m.lastUpdate = msg.Time
		if m.ctrl != nil {
			m.status = m.ctrl.Status()
		}
		return m, tickCmd()

	case StatusMsg:
		m.status = msg.Status
		return m, nil

	case HistoryLoadedMsg:
		m.history = msg.Attempts
		return m, nil

	case InstalledVersionMsg:
		m.status.CurrentVersion = msg.Version
		return m, nil

	case ErrorMsg:
		m.err = msg.Err
		return m, nil

	case ToggleHistoryMsg:
		m.showHistory = !m.showHistory
		if m.showHistory {
			return m, m.loadHistoryCmd()
		}
		return m, nil
	}

	return m, nil
}

// handleKeyMsg handles keyboard input
func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "c":
		return m.runCommand(func() error { return m.ctrl.Check() })
	case "d":
		return m.runCommand(func() error { return m.ctrl.Download("") })
	case "a", "enter":
		return m.runCommand(func() error { return m.ctrl.Apply() })
	case "x", "esc":
		return m.runCommand(func() error { return m.ctrl.Cancel() })
	case "h":
		return m, func() tea.Msg { return ToggleHistoryMsg{} }
	case "r":
		return m, m.loadHistoryCmd()
	}

	return m, nil
}

// runCommand issues an orchestrator command and turns a refusal into a
// footer note instead of an error screen.
func (m Model) runCommand(cmd func() error) (tea.Model, tea.Cmd) {
	m.note = ""
	if m.ctrl == nil {
		return m, nil
	}
	err := cmd()
	switch {
	case err == nil:
		m.err = nil
		m.status = m.ctrl.Status()
	case errors.Is(err, updater.ErrBusy):
		m.note = "busy, press x to cancel first"
	case errors.Is(err, updater.ErrNoTarget):
		m.note = "check for an update first (c)"
	case errors.Is(err, updater.ErrNoArchive):
		m.note = "download the update first (d)"
	default:
		m.err = err
	}
	return m, nil
}

// loadHistoryCmd loads recent attempts off the UI loop
func (m Model) loadHistoryCmd() tea.Cmd {
	loader := m.loadHistory
	if loader == nil {
		return nil
	}
	return func() tea.Msg {
		attempts, err := loader()
		if err != nil {
			return ErrorMsg{Err: err}
		}
		return HistoryLoadedMsg{Attempts: attempts}
	}
}

// tickCmd returns a command that sends TickMsg messages
func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg{Time: t.Format("15:04:05")}
	})
}
