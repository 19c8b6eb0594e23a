package updater

import (
	"github.com/opentcu/configtool/internal/install"
	"github.com/opentcu/configtool/internal/release"
	"github.com/opentcu/configtool/internal/version"
)

// State is the orchestrator's public lifecycle state.
type State int

const (
	// StateIdle means no session is active
	StateIdle State = iota
	// StateChecking means a release list fetch is in flight
	StateChecking
	// StateUpdateAvailable means a target release was found and is waiting
	// for a download command
	StateUpdateAvailable
	// StateDownloading means an asset transfer is in flight
	StateDownloading
	// StateDownloaded means the archive is in hand, waiting for apply
	StateDownloaded
	// StateInstalling means verify/extract/swap is in flight
	StateInstalling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChecking:
		return "checking"
	case StateUpdateAvailable:
		return "update available"
	case StateDownloading:
		return "downloading"
	case StateDownloaded:
		return "downloaded"
	case StateInstalling:
		return "installing"
	default:
		return "unknown"
	}
}

// busy reports whether a worker goroutine owns the session right now.
func (s State) busy() bool {
	return s == StateChecking || s == StateDownloading || s == StateInstalling
}

// Failure is a user-presentable stage + reason pair for a terminal
// session error. Reason is always human-readable; the raw error is kept
// for logs only.
type Failure struct {
	Stage  string
	Reason string
	Err    error
}

// Status is the immutable snapshot the GUI reads each frame.
type Status struct {
	CurrentVersion version.Version
	State          State
	UpToDate       bool

	// Target release data, set from StateUpdateAvailable onward
	TargetTag     string
	TargetVersion version.Version
	Assets        []release.Asset

	// Transfer progress, meaningful while downloading
	Progress release.Progress

	// Install stage, meaningful while installing
	Stage install.Stage

	// Failure of the most recent session, nil after a clean finish
	Failure *Failure
}
