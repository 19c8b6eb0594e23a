package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/opentcu/configtool/internal/store"
	"github.com/opentcu/configtool/internal/updater"
)

// failureWidth caps the failure line so the bordered frame stays intact
const failureWidth = 64

// View renders the UI
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	// Show error if any
	if m.err != nil {
		return m.renderError()
	}

	// Build main UI
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderVersions())
	sections = append(sections, m.renderSessionState())

	switch m.status.State {
	case updater.StateDownloading:
		sections = append(sections, m.renderProgressBar())
	case updater.StateInstalling:
		sections = append(sections, m.renderStage())
	}

	if m.status.Failure != nil {
		sections = append(sections, m.renderFailure())
	}

	if m.showHistory && len(m.history) > 0 {
		sections = append(sections, m.renderHistory())
	}

	sections = append(sections, m.renderFooter())

	content := lipgloss.JoinVertical(lipgloss.Left, sections...)
	return m.styles.Border.Render(content)
}

// renderHeader renders the header section
func (m Model) renderHeader() string {
	left := m.styles.Title.Render("TCU Config Tool")
	right := m.styles.Subtitle.Render(m.lastUpdate)

	headerRow := lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right)
	return headerRow
}

// renderVersions renders the installed and target version lines
func (m Model) renderVersions() string {
	var lines []string

	installed := m.status.CurrentVersion.String()
	if m.status.CurrentVersion.IsZero() {
		installed = "not installed"
	}
	lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top,
		m.styles.Label.Render("Installed:"),
		m.styles.Value.Render(installed)))

	if m.status.TargetTag != "" {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top,
			m.styles.Label.Render("Available:"),
			m.styles.Highlight.Render(fmt.Sprintf("%s (%s)", m.status.TargetVersion, m.status.TargetTag))))
	}

	return "\n" + strings.Join(lines, "\n")
}

// renderSessionState renders the state line
func (m Model) renderSessionState() string {
	label := m.styles.Label.Render("Status:")

	var style lipgloss.Style
	var text string
	switch {
	case m.status.State == updater.StateIdle && m.status.UpToDate:
		style = m.styles.StateOk
		text = "up to date"
	case m.status.State == updater.StateIdle:
		style = m.styles.Muted
		text = "idle"
	case m.status.State == updater.StateUpdateAvailable:
		style = m.styles.StateOk
		text = "update available"
	case m.status.State == updater.StateDownloaded:
		style = m.styles.StateOk
		text = "downloaded, ready to install"
	default:
		style = m.styles.StateWorking
		text = m.status.State.String()
	}

	return "\n" + lipgloss.JoinHorizontal(lipgloss.Top, label, style.Render(text))
}

// renderProgressBar renders the download progress bar
func (m Model) renderProgressBar() string {
	label := m.styles.Label.Render("Download:")

	received := m.status.Progress.BytesReceived
	total := m.status.Progress.BytesTotal

	barWidth := 30
	var fillWidth int
	if total > 0 {
		fillWidth = int(float64(received) / float64(total) * float64(barWidth))
	}
	if fillWidth > barWidth {
		fillWidth = barWidth
	}

	filled := strings.Repeat("█", fillWidth)
	empty := strings.Repeat("░", barWidth-fillWidth)
	bar := m.styles.ProgressFull.Render(filled) + m.styles.ProgressEmpty.Render(empty)

	var info string
	if total > 0 {
		info = fmt.Sprintf(" %s / %s", formatBytes(received), formatBytes(total))
	} else {
		info = fmt.Sprintf(" %s", formatBytes(received))
	}

	line := lipgloss.JoinHorizontal(lipgloss.Top, label, bar+m.styles.Value.Render(info))
	return "\n" + line
}

// renderStage renders the install stage while swapping the bundle in
func (m Model) renderStage() string {
	label := m.styles.Label.Render("Install:")
	value := m.styles.StateWorking.Render(m.status.Stage.String() + "...")
	return "\n" + lipgloss.JoinHorizontal(lipgloss.Top, label, value)
}

// renderFailure renders the last session failure
func (m Model) renderFailure() string {
	label := m.styles.Label.Render("Failed:")
	text := m.status.Failure.Reason
	if text == "" {
		text = m.status.Failure.Stage + " failed"
	}
	text = runewidth.Truncate(text, failureWidth, "…")
	return "\n" + lipgloss.JoinHorizontal(lipgloss.Top, label, m.styles.StateCritical.Render(text))
}

// renderHistory renders the attempt history section
func (m Model) renderHistory() string {
	header := m.styles.Title.Render("\nRecent Updates:")
	lines := []string{header}

	for i, entry := range m.history {
		if i >= 5 { // Show max 5 entries
			break
		}

		var style lipgloss.Style
		if i < 2 {
			style = m.styles.HistoryItem
		} else {
			style = m.styles.HistoryItemOld
		}

		lines = append(lines, style.Render(formatAttempt(entry)))
	}

	return strings.Join(lines, "\n")
}

// formatAttempt renders one history row
func formatAttempt(entry store.AttemptRecord) string {
	target := entry.ToVersion
	if target == "" {
		target = "-"
	}
	return fmt.Sprintf(" • %s  %s → %s  %s",
		entry.StartedAt.Format("2006-01-02 15:04"),
		entry.FromVersion,
		target,
		entry.Outcome,
	)
}

// renderFooter renders the footer with help text
func (m Model) renderFooter() string {
	help := "\n\nq: quit | c: check | d: download | a: apply | x: cancel | h: history"
	if m.note != "" {
		return m.styles.StateWorking.Render("\n\n"+m.note) + m.styles.Muted.Render(help)
	}
	return m.styles.Muted.Render(help)
}

// renderError renders the error screen
func (m Model) renderError() string {
	errorText := m.styles.Error.Render(fmt.Sprintf("Error: %v", m.err))
	helpText := m.styles.Muted.Render("\n\nPress q to quit")
	return m.styles.Border.Render(errorText + helpText)
}

// formatBytes formats a byte count for display
func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
