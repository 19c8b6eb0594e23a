package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"github.com/opentcu/configtool/internal/config"
	"github.com/opentcu/configtool/internal/manifest"
	"github.com/opentcu/configtool/internal/store"
)

// exitFunc is the function to call for exiting (can be mocked for testing)
var exitFunc = os.Exit

func main() {
	initLog()

	if err := run(&AppDependencies{
		LoadSettings: func() (config.Settings, error) {
			return config.LoadSettings(config.SettingsPath())
		},
		InstallDir:    config.InstallDir,
		StagingRoot:   config.StagingRoot,
		HistoryDBPath: config.HistoryDBPath,
		DBOpener:      store.Open,
		WatcherCreator: func(path string) (manifest.WatcherInterface, error) {
			return manifest.NewWatcher(path)
		},
		ProgramRunner: func(p *tea.Program) error {
			_, err := p.Run()
			return err
		},
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logAndExit(err)
	}
}

// initLog sends structured logs to a file; the terminal belongs to the
// TUI while the program runs.
func initLog() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if lvl, err := log.ParseLevel(os.Getenv("CONFIGTOOL_LOG_LEVEL")); err == nil {
		log.SetLevel(lvl)
	}

	logPath := filepath.Join(config.CacheDir(), "configtool.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err == nil {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			log.SetOutput(f)
			return
		}
	}
	log.SetOutput(io.Discard)
}

func logAndExit(err error) {
	// This is a separate function to allow testing of error handling
	if err != nil {
		exitFunc(1)
	}
}
