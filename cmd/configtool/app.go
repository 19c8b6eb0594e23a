package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"github.com/opentcu/configtool/internal/config"
	"github.com/opentcu/configtool/internal/manifest"
	"github.com/opentcu/configtool/internal/release"
	"github.com/opentcu/configtool/internal/store"
	"github.com/opentcu/configtool/internal/updater"
	"github.com/opentcu/configtool/tui"
)

// ProgramSender is an interface for sending messages to a Bubbletea program
type ProgramSender interface {
	Send(msg tea.Msg)
}

// AppDependencies contains the dependencies for the main application
type AppDependencies struct {
	LoadSettings   func() (config.Settings, error)
	InstallDir     func() string
	StagingRoot    func() string
	HistoryDBPath  func() string
	DBOpener       func(string) (*store.DB, error)
	WatcherCreator func(string) (manifest.WatcherInterface, error)
	ProgramRunner  func(*tea.Program) error
}

func run(deps *AppDependencies) error {
	settings, err := deps.LoadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	liveDir := deps.InstallDir()
	if err := os.MkdirAll(liveDir, 0o755); err != nil {
		return fmt.Errorf("failed to create install directory: %w", err)
	}

	// Open attempt history
	db, err := deps.DBOpener(deps.HistoryDBPath())
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer db.Close()

	client := release.NewClient(release.ClientConfig{
		Owner:        settings.RepoOwner,
		Repo:         settings.RepoName,
		Token:        settings.Token,
		StallTimeout: settings.StallTimeout(),
	})

	orch := updater.New(updater.Config{
		Fetcher:         client,
		LiveDir:         liveDir,
		StagingRoot:     deps.StagingRoot(),
		AllowPrerelease: settings.AllowPrerelease,
		History:         db,
	})

	model := tui.NewModel(orch, func() ([]store.AttemptRecord, error) {
		return db.GetRecentAttempts(10)
	})

	// Watch the live install for changes made behind our back
	watcher, err := deps.WatcherCreator(liveDir)
	if err != nil {
		return fmt.Errorf("failed to start install watcher: %w", err)
	}
	defer watcher.Close()

	p := tea.NewProgram(model, tea.WithAltScreen())

	go runWatchLoop(p, watcher, orch)

	return deps.ProgramRunner(p)
}

// runWatchLoop forwards live-install changes to the orchestrator and the
// TUI until the watcher closes.
func runWatchLoop(sender ProgramSender, watcher manifest.WatcherInterface, orch *updater.Orchestrator) {
	for {
		select {
		case v, ok := <-watcher.Versions():
			if !ok {
				return
			}
			log.WithField("version", v.String()).Info("live install changed")
			orch.SetCurrentVersion(v)
			sender.Send(tui.InstalledVersionMsg{Version: v})

		case err, ok := <-watcher.Errors():
			if !ok {
				return
			}
			log.WithError(err).Warn("install watcher error")
		}
	}
}
