package manifest

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/opentcu/configtool/internal/version"
)

// WatcherInterface defines the interface for manifest watchers
type WatcherInterface interface {
	Versions() <-chan version.Version
	Errors() <-chan error
	Close() error
}

// Watcher monitors the live install directory and re-derives the
// installed version whenever the version marker changes (an apply from
// this process or a reinstall from outside).
type Watcher struct {
	watcher     *fsnotify.Watcher
	liveDir     string
	last        version.Version
	versionChan chan version.Version
	errorChan   chan error
	done        chan struct{}
}

// NewWatcher creates a watcher for the live install directory.
func NewWatcher(liveDir string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsWatcher.Add(liveDir); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	current, err := ReadInstalledVersion(liveDir)
	if err != nil {
		// Not fatal: a fresh install may not exist yet; the first event
		// or poll will pick it up
		log.WithError(err).Debug("no installed version at watcher start")
	}

	w := &Watcher{
		watcher:     fsWatcher,
		liveDir:     liveDir,
		last:        current,
		versionChan: make(chan version.Version, 4),
		errorChan:   make(chan error, 4),
		done:        make(chan struct{}),
	}

	go w.watch()
	return w, nil
}

// watch runs the watching loop. A slow poll backs up fsnotify since a
// directory swap can replace the watched inode entirely.
func (w *Watcher) watch() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	defer close(w.versionChan)
	defer close(w.errorChan)

	marker := filepath.Join(w.liveDir, VersionMarker)

	for {
		select {
		case <-w.done:
			return

		case <-ticker.C:
			w.rederive()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name == marker || event.Name == w.liveDir {
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					w.rederive()
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.errorChan <- err
		}
	}
}

// rederive re-reads the manifest and publishes the version if it changed.
func (w *Watcher) rederive() {
	v, err := ReadInstalledVersion(w.liveDir)
	if err != nil {
		return
	}
	if v.Equal(w.last) {
		return
	}
	w.last = v
	select {
	case w.versionChan <- v:
	default:
		// Consumer is behind; it polls anyway
	}
}

// Versions returns a channel of newly derived installed versions.
func (w *Watcher) Versions() <-chan version.Version {
	return w.versionChan
}

// Errors returns a channel of errors from the underlying watcher.
func (w *Watcher) Errors() <-chan error {
	return w.errorChan
}

// Close stops watching the install directory.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
	}
	return w.watcher.Close()
}
