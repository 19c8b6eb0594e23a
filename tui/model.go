package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/opentcu/configtool/internal/store"
	"github.com/opentcu/configtool/internal/updater"
)

// Controller is the slice of the orchestrator the UI drives. Status
// never blocks; the command methods only enqueue work.
type Controller interface {
	Status() updater.Status
	Check() error
	Download(assetName string) error
	Apply() error
	Cancel() error
}

// HistoryLoader fetches recent update attempts for the history pane.
type HistoryLoader func() ([]store.AttemptRecord, error)

// Model represents the application state
type Model struct {
	ctrl        Controller
	loadHistory HistoryLoader

	// Latest orchestrator snapshot, refreshed every tick
	status updater.Status

	// Attempt history pane
	history     []store.AttemptRecord
	showHistory bool

	// State
	quitting   bool
	lastUpdate string

	// Transient note shown when a command is refused (e.g. busy)
	note string

	// Error state
	err error

	// Styles
	styles Styles
}

// Styles contains the Lipgloss styles for the UI
type Styles struct {
	Border        lipgloss.Style
	Header        lipgloss.Style
	Title         lipgloss.Style
	Subtitle      lipgloss.Style
	Label         lipgloss.Style
	Value         lipgloss.Style
	Highlight     lipgloss.Style
	Muted         lipgloss.Style
	Error         lipgloss.Style
	ProgressFull  lipgloss.Style
	ProgressEmpty lipgloss.Style

	HistoryItem    lipgloss.Style
	HistoryItemOld lipgloss.Style

	// Session state styles
	StateOk       lipgloss.Style
	StateWorking  lipgloss.Style
	StateCritical lipgloss.Style
}

// DefaultStyles returns the default UI styles
func DefaultStyles() Styles {
	var styles Styles

	// Color palette
	primaryColor := lipgloss.Color("86")    // Green
	secondaryColor := lipgloss.Color("239") // Grey
	errorColor := lipgloss.Color("196")     // Red
	warnColor := lipgloss.Color("208")      // Orange

	styles.Border = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(secondaryColor)

	styles.Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(primaryColor).
		Padding(0, 1)

	styles.Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("255"))

	styles.Subtitle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("243"))

	styles.Label = lipgloss.NewStyle().
		Foreground(lipgloss.Color("243")).
		Width(12)

	styles.Value = lipgloss.NewStyle().
		Foreground(lipgloss.Color("255"))

	styles.Highlight = lipgloss.NewStyle().
		Bold(true).
		Foreground(primaryColor)

	styles.Muted = lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	styles.Error = lipgloss.NewStyle().
		Foreground(errorColor).
		Bold(true)

	styles.ProgressFull = lipgloss.NewStyle().
		Background(primaryColor).
		Foreground(lipgloss.Color("0"))

	styles.ProgressEmpty = lipgloss.NewStyle().
		Background(lipgloss.Color("235"))

	styles.HistoryItem = lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))

	styles.HistoryItemOld = lipgloss.NewStyle().
		Foreground(lipgloss.Color("242"))

	styles.StateOk = lipgloss.NewStyle().
		Foreground(primaryColor).
		Bold(true)

	styles.StateWorking = lipgloss.NewStyle().
		Foreground(warnColor).
		Bold(true)

	styles.StateCritical = lipgloss.NewStyle().
		Foreground(errorColor).
		Bold(true)

	return styles
}

// NewModel creates a new Model with default values
func NewModel(ctrl Controller, loadHistory HistoryLoader) Model {
	m := Model{
		ctrl:        ctrl,
		loadHistory: loadHistory,
		styles:      DefaultStyles(),
		history:     make([]store.AttemptRecord, 0, 10),
	}
	if ctrl != nil {
		m.status = ctrl.Status()
	}
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.loadHistoryCmd())
}
