// Package manifest derives the currently installed version from the live
// install directory itself. There is no separate version database: the
// textual marker (or, failing that, the firmware image header) is the
// single source of truth, re-read after every successful apply.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opentcu/configtool/internal/packed"
	"github.com/opentcu/configtool/internal/version"
)

// VersionMarker is the textual version file inside the live install.
const VersionMarker = "version.txt"

// IdentMarker is the identification record inside the live install.
const IdentMarker = "ident.bin"

// ErrNoManifest is returned when neither a version marker nor a firmware
// header can be found in the install directory.
var ErrNoManifest = errors.New("manifest: no version marker in install directory")

// ReadInstalledVersion reads the installed version from liveDir: the
// version.txt marker first, then any firmware image header as fallback.
// A missing or unparsable manifest is an error, never version 0.0.0.
func ReadInstalledVersion(liveDir string) (version.Version, error) {
	if v, err := readMarker(filepath.Join(liveDir, VersionMarker)); err == nil {
		return v, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return version.Version{}, err
	}

	if v, err := readFirmwareVersion(liveDir); err == nil {
		return v, nil
	}

	return version.Version{}, fmt.Errorf("%w: %s", ErrNoManifest, liveDir)
}

// ReadInstalledIdent reads the identification record of the live
// install. A missing record returns nil without error (older bundles did
// not ship one); a present but undecodable record is an error.
func ReadInstalledIdent(liveDir string) (*packed.IdentRecord, error) {
	data, err := os.ReadFile(filepath.Join(liveDir, IdentMarker))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	rec, err := packed.DecodeIdent(data)
	if err != nil {
		return nil, fmt.Errorf("manifest: ident record: %w", err)
	}
	return &rec, nil
}

// readMarker parses the first non-empty line of the version marker.
func readMarker(path string) (version.Version, error) {
	f, err := os.Open(path)
	if err != nil {
		return version.Version{}, fmt.Errorf("manifest: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		v, perr := version.Parse(line)
		if perr != nil {
			return version.Version{}, fmt.Errorf("manifest: marker %s: %w", path, perr)
		}
		return v, nil
	}
	return version.Version{}, fmt.Errorf("manifest: marker %s is empty: %w", path, version.ErrEmpty)
}

// readFirmwareVersion scans firmware images in the install root for a
// packed header carrying the version text.
func readFirmwareVersion(liveDir string) (version.Version, error) {
	entries, err := os.ReadDir(liveDir)
	if err != nil {
		return version.Version{}, fmt.Errorf("manifest: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".bin") {
			continue
		}
		data, rerr := os.ReadFile(filepath.Join(liveDir, e.Name()))
		if rerr != nil {
			continue
		}
		h, _, herr := packed.FindHeader(data)
		if herr != nil {
			continue
		}
		if v, perr := version.Parse(h.VersionString()); perr == nil {
			return v, nil
		}
	}
	return version.Version{}, ErrNoManifest
}
