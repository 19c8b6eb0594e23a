// Package updater runs the update session state machine: check for a new
// release, download the chosen asset, verify and install it. All work
// happens on background goroutines; the GUI thread only ever reads a
// mutex-guarded status snapshot and enqueues commands.
package updater

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/opentcu/configtool/internal/install"
	"github.com/opentcu/configtool/internal/manifest"
	"github.com/opentcu/configtool/internal/packed"
	"github.com/opentcu/configtool/internal/release"
	"github.com/opentcu/configtool/internal/store"
	"github.com/opentcu/configtool/internal/version"
)

// Orchestrator errors.
var (
	// ErrBusy is returned when a command arrives while a session is active
	ErrBusy = errors.New("updater: an update session is already active")
	// ErrNoTarget is returned for a download command without a selected release
	ErrNoTarget = errors.New("updater: no update target selected")
	// ErrNoArchive is returned for an apply command without a downloaded archive
	ErrNoArchive = errors.New("updater: no downloaded archive to apply")
	// ErrNoAsset is returned when the requested asset is not part of the release
	ErrNoAsset = errors.New("updater: asset not found in release")
	// ErrHardwareMismatch is returned when the bundle's ident record
	// targets a different board or CAN profile than the live install
	ErrHardwareMismatch = errors.New("updater: bundle targets different hardware")
)

// Config wires an Orchestrator.
type Config struct {
	Fetcher     Fetcher
	LiveDir     string
	StagingRoot string
	// AllowPrerelease makes pre-release versions eligible targets
	AllowPrerelease bool
	// History is optional; attempts are recorded when set
	History *store.DB
	// RetryMaxElapsed bounds check retries; zero means a sensible default
	RetryMaxElapsed time.Duration
	// RetryInitialInterval is the first backoff delay; zero means a
	// sensible default
	RetryInitialInterval time.Duration
}

// Orchestrator owns at most one update session at a time.
type Orchestrator struct {
	cfg Config

	mu      sync.Mutex
	status  Status
	session *session
}

// session is the working state of one update attempt.
type session struct {
	id          string
	startedAt   time.Time
	fromVersion version.Version
	cancel      context.CancelFunc
	target      release.Release
	targetVer   version.Version
	archive     []byte
	stagingDir  string
}

// New creates an orchestrator and derives the installed version from the
// live install manifest. A missing manifest is tolerated (fresh setup);
// the status then carries a zero version until the first apply.
func New(cfg Config) *Orchestrator {
	if cfg.RetryMaxElapsed <= 0 {
		cfg.RetryMaxElapsed = 2 * time.Minute
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = time.Second
	}

	o := &Orchestrator{cfg: cfg}
	current, err := manifest.ReadInstalledVersion(cfg.LiveDir)
	if err != nil {
		log.WithError(err).Warn("could not derive installed version")
	}
	o.status = Status{CurrentVersion: current, State: StateIdle}
	return o
}

// Status returns an immutable snapshot for the render loop. Never blocks
// on I/O.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.status
	if len(s.Assets) > 0 {
		s.Assets = append([]release.Asset(nil), s.Assets...)
	}
	if s.Failure != nil {
		f := *s.Failure
		s.Failure = &f
	}
	return s
}

// SetCurrentVersion updates the installed version, typically from the
// manifest watcher after an external change.
func (o *Orchestrator) SetCurrentVersion(v version.Version) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.CurrentVersion = v
}

// Check starts a new update session and queries the release list. Fails
// with ErrBusy while any session is active.
func (o *Orchestrator) Check() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session != nil {
		return ErrBusy
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.session = &session{
		id:          uuid.NewString(),
		startedAt:   time.Now(),
		fromVersion: o.status.CurrentVersion,
		cancel:      cancel,
	}
	o.status = Status{
		CurrentVersion: o.status.CurrentVersion,
		State:          StateChecking,
	}

	go o.runCheck(ctx)
	return nil
}

func (o *Orchestrator) runCheck(ctx context.Context) {
	releases, err := o.listWithRetry(ctx)
	if ctx.Err() != nil {
		o.finishCancelled()
		return
	}
	if err != nil {
		o.fail("check", err)
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	target := release.SelectTarget(releases, o.status.CurrentVersion, o.cfg.AllowPrerelease)
	if target == nil {
		log.Info("no update available")
		o.recordLocked(store.OutcomeNoUpdate, "")
		o.status.State = StateIdle
		o.status.UpToDate = true
		o.session = nil
		return
	}

	targetVer, err := release.TargetVersion(target)
	if err != nil {
		// SelectTarget only returns parsable tags; treat this as decode
		o.failLocked("check", err)
		return
	}

	log.WithFields(log.Fields{
		"tag":     target.TagName,
		"current": o.status.CurrentVersion.String(),
	}).Info("update available")

	o.session.target = *target
	o.session.targetVer = targetVer
	o.status.State = StateUpdateAvailable
	o.status.TargetTag = target.TagName
	o.status.TargetVersion = targetVer
	o.status.Assets = append([]release.Asset(nil), target.Assets...)
}

// listWithRetry fetches the release list, retrying transient failures
// with exponential backoff and honoring server-supplied rate-limit
// delays. Unauthorized and decode failures are permanent.
func (o *Orchestrator) listWithRetry(ctx context.Context) ([]release.Release, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.cfg.RetryInitialInterval
	bo.MaxElapsedTime = o.cfg.RetryMaxElapsed

	var releases []release.Release
	op := func() error {
		rs, err := o.cfg.Fetcher.ListReleases(ctx)
		if err != nil {
			if release.IsTerminal(err) {
				return backoff.Permanent(err)
			}
			var rle *release.RateLimitError
			if errors.As(err, &rle) {
				log.WithField("retry_after", rle.RetryAfter).Warn("rate limited by release server")
				// The server's delay replaces the policy delay: wait it
				// out, then restart the backoff clock so the elapsed
				// budget is not charged for it
				waitFor(ctx, rle.RetryAfter)
				bo.Reset()
			}
			return err
		}
		releases = rs
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return releases, nil
}

func waitFor(ctx context.Context, d time.Duration) {
	const maxWait = 2 * time.Minute
	if d > maxWait {
		d = maxWait
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Download starts the transfer of one asset of the selected release.
// assetName may be empty to pick the bundle archive automatically.
func (o *Orchestrator) Download(assetName string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.status.State.busy() {
		return ErrBusy
	}
	if o.session == nil || (o.status.State != StateUpdateAvailable && o.status.State != StateDownloaded) {
		return ErrNoTarget
	}

	asset, err := pickAsset(o.session.target.Assets, assetName)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.session.cancel = cancel
	o.session.archive = nil
	o.status.State = StateDownloading
	o.status.Progress = release.Progress{BytesTotal: asset.Size}

	go o.runDownload(ctx, asset)
	return nil
}

// pickAsset resolves an asset by name, defaulting to the first zip.
func pickAsset(assets []release.Asset, name string) (release.Asset, error) {
	if name != "" {
		for _, a := range assets {
			if a.Name == name {
				return a, nil
			}
		}
		return release.Asset{}, fmt.Errorf("%w: %q", ErrNoAsset, name)
	}
	for _, a := range assets {
		if strings.HasSuffix(a.Name, ".zip") {
			return a, nil
		}
	}
	return release.Asset{}, fmt.Errorf("%w: no archive asset in release", ErrNoAsset)
}

func (o *Orchestrator) runDownload(ctx context.Context, asset release.Asset) {
	var buf bytes.Buffer
	err := o.cfg.Fetcher.Download(ctx, asset, &buf, func(p release.Progress) {
		o.mu.Lock()
		if p.BytesReceived >= o.status.Progress.BytesReceived {
			o.status.Progress = p
		}
		o.mu.Unlock()
	})

	if ctx.Err() != nil {
		// A cancelled download restarts from zero; the partial buffer is
		// simply dropped
		o.finishCancelled()
		return
	}
	if err != nil {
		o.fail("download", err)
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.session.archive = buf.Bytes()
	o.status.State = StateDownloaded
	log.WithFields(log.Fields{
		"asset": asset.Name,
		"bytes": buf.Len(),
	}).Info("asset downloaded")
}

// Apply verifies the downloaded archive, extracts it into a fresh
// staging directory, and swaps it into the live install.
func (o *Orchestrator) Apply() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.status.State.busy() {
		return ErrBusy
	}
	if o.session == nil || o.status.State != StateDownloaded {
		return ErrNoArchive
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.session.cancel = cancel
	// Fresh staging name per attempt; stale dirs from crashed attempts
	// are harmless and cleaned lazily
	o.session.stagingDir = filepath.Join(o.cfg.StagingRoot, "stage-"+uuid.NewString())
	o.status.State = StateInstalling
	o.status.Stage = install.StageVerifying

	go o.runInstall(ctx, o.session.archive, o.session.stagingDir, o.session.targetVer)
	return nil
}

func (o *Orchestrator) runInstall(ctx context.Context, archive []byte, stagingDir string, targetVer version.Version) {
	if err := install.Verify(archive); err != nil {
		o.fail("install", err)
		return
	}
	if ctx.Err() != nil {
		o.finishCancelled()
		return
	}

	o.setStage(install.StageExtracting)
	layout, err := install.Extract(archive, stagingDir)
	if err != nil {
		o.fail("install", err)
		return
	}
	if err := o.validateBundle(layout, targetVer); err != nil {
		o.fail("install", err)
		return
	}
	if ctx.Err() != nil {
		o.finishCancelled()
		return
	}

	o.setStage(install.StageSwappingIn)
	if err := install.SwapIn(stagingDir, o.cfg.LiveDir); err != nil {
		o.fail("install", err)
		return
	}

	// The staged tree was renamed into place; anything left is scrap
	if err := os.RemoveAll(stagingDir); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("could not remove staging directory")
	}

	current, err := manifest.ReadInstalledVersion(o.cfg.LiveDir)
	if err != nil {
		log.WithError(err).Warn("could not re-derive installed version after apply")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.recordLocked(store.OutcomeApplied, "")
	o.status = Status{
		CurrentVersion: current,
		State:          StateIdle,
		UpToDate:       true,
		Stage:          install.StageDone,
	}
	o.session = nil
	log.WithField("version", current.String()).Info("update applied")
}

// validateBundle cross-checks the packed manifest structures inside the
// extracted bundle against the target release and the live install.
func (o *Orchestrator) validateBundle(layout *install.Layout, targetVer version.Version) error {
	if layout.Ident != nil {
		if err := o.checkIdent(layout.Ident); err != nil {
			return err
		}
	}

	if layout.FirmwareHeader == nil {
		return nil
	}
	hv, err := version.Parse(layout.FirmwareHeader.VersionString())
	if err != nil {
		return fmt.Errorf("install: firmware header version: %w", err)
	}
	if !hv.Equal(targetVer) {
		return fmt.Errorf("install: bundle firmware is %s, release tag is %s", hv, targetVer)
	}
	return nil
}

// checkIdent compares the bundle's ident record against the one in the
// live install. An unreadable live record does not block the update; a
// readable one with a different board revision or EGS profile does.
func (o *Orchestrator) checkIdent(bundle *packed.IdentRecord) error {
	installed, err := manifest.ReadInstalledIdent(o.cfg.LiveDir)
	if err != nil {
		log.WithError(err).Warn("could not read installed ident record")
		return nil
	}
	if installed == nil {
		return nil
	}
	if installed.BoardRev != bundle.BoardRev {
		return fmt.Errorf("%w: board %s, installed %s",
			ErrHardwareMismatch, bundle.BoardRev, installed.BoardRev)
	}
	if installed.Profile != bundle.Profile {
		return fmt.Errorf("%w: profile %s, installed %s",
			ErrHardwareMismatch, bundle.Profile, installed.Profile)
	}
	return nil
}

// Cancel abandons the active session: in-flight work is interrupted at
// its next suspension point, partial downloads are dropped, and the
// staging directory is deleted best-effort.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil {
		return nil
	}

	if o.status.State.busy() {
		// The worker goroutine observes the context and unwinds to Idle
		if o.session.cancel != nil {
			o.session.cancel()
		}
		return nil
	}

	// No worker running; tear the session down right here
	o.cleanupStagingLocked()
	o.recordLocked(store.OutcomeCancelled, "")
	o.status = Status{CurrentVersion: o.status.CurrentVersion, State: StateIdle}
	o.session = nil
	return nil
}

// finishCancelled is the worker-side unwind path after a context cancel.
func (o *Orchestrator) finishCancelled() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.cleanupStagingLocked()
	o.recordLocked(store.OutcomeCancelled, "")
	o.status = Status{CurrentVersion: o.status.CurrentVersion, State: StateIdle}
	o.session = nil
	log.Info("update session cancelled")
}

// fail ends the session with a user-presentable stage + reason pair.
func (o *Orchestrator) fail(stage string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failLocked(stage, err)
}

func (o *Orchestrator) failLocked(stage string, err error) {
	reason := humanReason(stage, err)
	log.WithError(err).WithField("stage", stage).Error("update session failed")

	o.cleanupStagingLocked()
	o.recordLocked(store.OutcomeFailed, reason)
	o.status = Status{
		CurrentVersion: o.status.CurrentVersion,
		State:          StateIdle,
		Failure:        &Failure{Stage: stage, Reason: reason, Err: err},
	}
	o.session = nil
}

// cleanupStagingLocked removes the session's staging directory. Failure
// to delete is logged, not escalated: each attempt stages under a fresh
// name, so leftovers are inert.
func (o *Orchestrator) cleanupStagingLocked() {
	if o.session == nil || o.session.stagingDir == "" {
		return
	}
	if err := os.RemoveAll(o.session.stagingDir); err != nil {
		log.WithError(err).Warn("could not remove staging directory")
	}
}

func (o *Orchestrator) recordLocked(outcome, detail string) {
	if o.cfg.History == nil || o.session == nil {
		return
	}
	rec := store.AttemptRecord{
		ID:          o.session.id,
		StartedAt:   o.session.startedAt,
		FromVersion: o.session.fromVersion.String(),
		ToVersion:   o.session.target.TagName,
		Outcome:     outcome,
		Detail:      detail,
	}
	if err := o.cfg.History.SaveAttempt(rec); err != nil {
		log.WithError(err).Warn("could not record update attempt")
	}
}

func (o *Orchestrator) setStage(s install.Stage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setStageLocked(s)
}

func (o *Orchestrator) setStageLocked(s install.Stage) {
	o.status.Stage = s
}

// humanReason maps pipeline errors onto text fit for the GUI. The raw
// error never stands alone in front of the user.
func humanReason(stage string, err error) string {
	switch {
	case errors.Is(err, release.ErrUnauthorized):
		return "the release server rejected the access token"
	case errors.Is(err, release.ErrRateLimited):
		return "the release server rate limit was exceeded, try again later"
	case errors.Is(err, release.ErrDecode):
		return "the release server returned an unreadable response"
	case errors.Is(err, release.ErrNetwork):
		return "a network failure interrupted the " + stage
	case errors.Is(err, install.ErrCorrupt):
		return "the downloaded archive is corrupt"
	case errors.Is(err, install.ErrPathTraversal):
		return "the downloaded archive contains unsafe file paths"
	case errors.Is(err, ErrHardwareMismatch):
		return "the bundle targets a different TCU board or CAN profile"
	case errors.Is(err, install.ErrSwapFailed):
		return "the new bundle could not be moved into place, the previous install is untouched"
	case errors.Is(err, version.ErrMalformed), errors.Is(err, version.ErrEmpty):
		return "the release carries an unreadable version marker"
	default:
		return "the " + stage + " step failed unexpectedly"
	}
}
