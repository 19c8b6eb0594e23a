package tui

import (
	"github.com/opentcu/configtool/internal/store"
	"github.com/opentcu/configtool/internal/updater"
	"github.com/opentcu/configtool/internal/version"
)

// StatusMsg carries a fresh orchestrator snapshot
type StatusMsg struct {
	Status updater.Status
}

// HistoryLoadedMsg is sent when the attempt history is loaded
type HistoryLoadedMsg struct {
	Attempts []store.AttemptRecord
}

// InstalledVersionMsg is sent when the live install changes underneath
// us, reported by the manifest watcher
type InstalledVersionMsg struct {
	Version version.Version
}

// ErrorMsg is sent when an error occurs
type ErrorMsg struct {
	Err error
}

// TickMsg is sent periodically to update the UI
type TickMsg struct {
	Time string
}

// ToggleHistoryMsg toggles the attempt history pane
type ToggleHistoryMsg struct{}
