// Package install validates downloaded release archives, extracts them
// into a staging directory, and swaps the staged tree into the live
// install location. The one rule that outranks everything else here: a
// failed install must leave the previous live directory fully usable.
package install

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/opentcu/configtool/internal/packed"
)

// Install errors.
var (
	// ErrCorrupt is returned when the archive fails structural validation
	ErrCorrupt = errors.New("install: corrupt archive")
	// ErrPathTraversal is returned when an entry would escape the staging dir
	ErrPathTraversal = errors.New("install: archive entry escapes staging directory")
	// ErrSwapFailed is returned when the live directory cannot be replaced atomically
	ErrSwapFailed = errors.New("install: swap failed")
)

// Stage tracks where an install attempt is in its lifecycle. Failed is
// terminal for the attempt; a retry starts over from Verifying.
type Stage int

const (
	StageVerifying Stage = iota
	StageExtracting
	StageSwappingIn
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageVerifying:
		return "verifying"
	case StageExtracting:
		return "extracting"
	case StageSwappingIn:
		return "swapping in"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IdentFile is the bundle identification record shipped next to the
// firmware image.
const IdentFile = "ident.bin"

// Layout describes an extracted staging directory.
type Layout struct {
	// Root is the staging directory the archive was extracted into
	Root string
	// Files holds staging-relative paths of every extracted file
	Files []string
	// FirmwareHeader is set when the bundle contains a firmware image
	// with a parsable header
	FirmwareHeader *packed.FirmwareHeader
	// Ident is set when the bundle ships an identification record
	Ident *packed.IdentRecord
}

// Verify checks the archive's structural integrity (central directory
// and entry headers) without writing anything to disk.
func Verify(data []byte) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		// Non-local entry names are a structural non-issue here; Extract
		// rejects them per entry. Anything else is corruption.
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("%w: entry %q: %v", ErrCorrupt, f.Name, err)
		}
		rc.Close()
	}
	return nil
}

// Extract unpacks the archive into stagingDir, creating it if needed;
// callers stage each attempt under a fresh name. Entries that would
// resolve outside the staging directory are rejected before anything is
// written.
func Extract(data []byte, stagingDir string) (*Layout, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("install: creating staging dir: %w", err)
	}

	layout := &Layout{Root: stagingDir}
	for _, f := range zr.File {
		target, err := resolveEntry(stagingDir, f.Name)
		if err != nil {
			return nil, err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, fmt.Errorf("install: %w", err)
			}
			continue
		}

		if err := extractFile(f, target); err != nil {
			return nil, err
		}
		relPath, _ := filepath.Rel(stagingDir, target)
		layout.Files = append(layout.Files, relPath)
	}

	layout.FirmwareHeader = findFirmware(stagingDir, layout.Files)
	layout.Ident, err = readIdent(stagingDir, layout.Files)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"staging": stagingDir,
		"files":   len(layout.Files),
	}).Debug("archive extracted")
	return layout, nil
}

// resolveEntry joins an archive entry name onto the staging root and
// rejects anything that escapes it (zip-slip).
func resolveEntry(stagingDir, name string) (string, error) {
	target := filepath.Join(stagingDir, filepath.FromSlash(name))
	rel, err := filepath.Rel(stagingDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, name)
	}
	if filepath.IsAbs(filepath.FromSlash(name)) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, name)
	}
	return target, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("install: %w", err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: entry %q: %v", ErrCorrupt, f.Name, err)
	}
	defer rc.Close()

	mode := f.Mode()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("%w: entry %q: %v", ErrCorrupt, f.Name, err)
	}
	return nil
}

// readIdent decodes the bundle identification record when present. A
// record that is present but undecodable means a damaged bundle.
func readIdent(root string, files []string) (*packed.IdentRecord, error) {
	for _, rel := range files {
		if filepath.Base(rel) != IdentFile {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, rel))
		if err != nil {
			return nil, fmt.Errorf("install: %w", err)
		}
		rec, err := packed.DecodeIdent(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, rel, err)
		}
		return &rec, nil
	}
	return nil, nil
}

// findFirmware looks for a firmware image in the extracted tree and
// decodes its header. A bundle without firmware is fine.
func findFirmware(root string, files []string) *packed.FirmwareHeader {
	for _, rel := range files {
		if !strings.HasSuffix(rel, ".bin") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, rel))
		if err != nil {
			continue
		}
		h, _, err := packed.FindHeader(data)
		if err != nil {
			log.WithField("file", rel).WithError(err).Debug("no firmware header")
			continue
		}
		return &h
	}
	return nil
}
