package main

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/opentcu/configtool/internal/config"
	"github.com/opentcu/configtool/internal/manifest"
	"github.com/opentcu/configtool/internal/store"
	"github.com/opentcu/configtool/internal/updater"
	"github.com/opentcu/configtool/internal/version"
	"github.com/opentcu/configtool/tui"
)

// fakeWatcher implements manifest.WatcherInterface for tests
type fakeWatcher struct {
	versions chan version.Version
	errs     chan error
	closed   bool
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{
		versions: make(chan version.Version, 4),
		errs:     make(chan error, 4),
	}
}

func (f *fakeWatcher) Versions() <-chan version.Version { return f.versions }
func (f *fakeWatcher) Errors() <-chan error             { return f.errs }
func (f *fakeWatcher) Close() error {
	f.closed = true
	return nil
}

// fakeSender records messages sent to the program
type fakeSender struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (f *fakeSender) Send(msg tea.Msg) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func (f *fakeSender) messages() []tea.Msg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tea.Msg(nil), f.msgs...)
}

func testDeps(t *testing.T, watcher *fakeWatcher) *AppDependencies {
	t.Helper()
	root := t.TempDir()
	return &AppDependencies{
		LoadSettings: func() (config.Settings, error) {
			return config.DefaultSettings(), nil
		},
		InstallDir:    func() string { return filepath.Join(root, "bundle") },
		StagingRoot:   func() string { return filepath.Join(root, "staging") },
		HistoryDBPath: func() string { return filepath.Join(root, "history.db") },
		DBOpener:      store.Open,
		WatcherCreator: func(path string) (manifest.WatcherInterface, error) {
			return watcher, nil
		},
		ProgramRunner: func(p *tea.Program) error { return nil },
	}
}

func TestRunSuccess(t *testing.T) {
	watcher := newFakeWatcher()
	close(watcher.versions)
	close(watcher.errs)

	if err := run(testDeps(t, watcher)); err != nil {
		t.Fatalf("run() failed: %v", err)
	}
	if !watcher.closed {
		t.Error("Watcher not closed on shutdown")
	}
}

func TestRunSettingsError(t *testing.T) {
	deps := testDeps(t, newFakeWatcher())
	deps.LoadSettings = func() (config.Settings, error) {
		return config.Settings{}, errors.New("corrupt settings")
	}
	if err := run(deps); err == nil {
		t.Error("Expected error from broken settings")
	}
}

func TestRunDBError(t *testing.T) {
	deps := testDeps(t, newFakeWatcher())
	deps.DBOpener = func(string) (*store.DB, error) {
		return nil, errors.New("db locked")
	}
	if err := run(deps); err == nil {
		t.Error("Expected error from broken database")
	}
}

func TestRunWatcherError(t *testing.T) {
	deps := testDeps(t, newFakeWatcher())
	deps.WatcherCreator = func(string) (manifest.WatcherInterface, error) {
		return nil, errors.New("inotify limit")
	}
	if err := run(deps); err == nil {
		t.Error("Expected error from broken watcher")
	}
}

func TestRunProgramError(t *testing.T) {
	watcher := newFakeWatcher()
	close(watcher.versions)
	close(watcher.errs)

	deps := testDeps(t, watcher)
	wantErr := errors.New("terminal gone")
	deps.ProgramRunner = func(p *tea.Program) error { return wantErr }
	if err := run(deps); !errors.Is(err, wantErr) {
		t.Errorf("run() = %v, want %v", err, wantErr)
	}
}

func TestRunWatchLoopForwardsVersions(t *testing.T) {
	root := t.TempDir()
	orch := updater.New(updater.Config{
		LiveDir:     filepath.Join(root, "bundle"),
		StagingRoot: filepath.Join(root, "staging"),
	})

	watcher := newFakeWatcher()
	sender := &fakeSender{}

	done := make(chan struct{})
	go func() {
		runWatchLoop(sender, watcher, orch)
		close(done)
	}()

	v := version.MustParse("1.4.0")
	watcher.versions <- v
	close(watcher.versions)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch loop did not exit after channel close")
	}

	if got := orch.Status().CurrentVersion.String(); got != "1.4.0" {
		t.Errorf("Orchestrator version = %s, want 1.4.0", got)
	}

	msgs := sender.messages()
	if len(msgs) != 1 {
		t.Fatalf("Got %d messages, want 1", len(msgs))
	}
	vm, ok := msgs[0].(tui.InstalledVersionMsg)
	if !ok {
		t.Fatalf("Expected InstalledVersionMsg, got %T", msgs[0])
	}
	if !vm.Version.Equal(v) {
		t.Errorf("Forwarded version = %s, want %s", vm.Version, v)
	}
}
