package install

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// renameFn performs the critical renames; injectable so tests can
// simulate a mid-swap failure.
var renameFn = os.Rename

// SwapIn atomically replaces liveDir with stagingDir. The fast path is a
// pair of renames on the same volume: live -> backup, staging -> live.
// Across volumes the staged tree is copied next to the live dir first so
// the final step is still a rename. On any failure the previous live
// directory is restored; it is never left half-written.
func SwapIn(stagingDir, liveDir string) error {
	if _, err := os.Stat(stagingDir); err != nil {
		return fmt.Errorf("%w: staging dir: %v", ErrSwapFailed, err)
	}

	backup := liveDir + ".old"
	// A stale backup from an earlier crashed attempt would block the rename
	if err := os.RemoveAll(backup); err != nil {
		return fmt.Errorf("%w: clearing old backup: %v", ErrSwapFailed, err)
	}

	liveExists := true
	if _, err := os.Stat(liveDir); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("%w: %v", ErrSwapFailed, err)
		}
		liveExists = false
	}

	src := stagingDir
	if err := renameWorks(stagingDir, liveDir); err != nil {
		// Cross-volume: copy the staged tree onto the live volume so the
		// final swap is still a same-volume rename.
		copied := liveDir + ".incoming"
		if cerr := os.RemoveAll(copied); cerr != nil {
			return fmt.Errorf("%w: %v", ErrSwapFailed, cerr)
		}
		if cerr := copyTree(stagingDir, copied); cerr != nil {
			os.RemoveAll(copied)
			return fmt.Errorf("%w: copying to live volume: %v", ErrSwapFailed, cerr)
		}
		src = copied
	}

	if liveExists {
		if err := renameFn(liveDir, backup); err != nil {
			if src != stagingDir {
				os.RemoveAll(src)
			}
			return fmt.Errorf("%w: moving live aside: %v", ErrSwapFailed, err)
		}
	}

	if err := renameFn(src, liveDir); err != nil {
		// Put the old install back; it must stay usable.
		if liveExists {
			if rerr := os.Rename(backup, liveDir); rerr != nil {
				log.WithError(rerr).Error("failed to restore previous install from backup")
			}
		}
		if src != stagingDir {
			os.RemoveAll(src)
		}
		return fmt.Errorf("%w: %v", ErrSwapFailed, err)
	}

	// New tree confirmed in place; the backup is now disposable.
	if liveExists {
		if err := os.RemoveAll(backup); err != nil {
			// Not fatal: stale backups are ignored by the next swap
			log.WithError(err).Warn("failed to remove backup of previous install")
		}
	}

	log.WithField("live", liveDir).Info("install swapped in")
	return nil
}

// renameWorks probes whether a rename from the staging volume into the
// live dir's parent volume can succeed.
func renameWorks(stagingDir, liveDir string) error {
	probe := filepath.Join(stagingDir, ".renameprobe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return err
	}
	defer os.Remove(probe)

	dst := liveDir + ".renameprobe"
	if err := os.Rename(probe, dst); err != nil {
		return err
	}
	// Move it back so staging stays intact
	if err := os.Rename(dst, probe); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}

// copyTree copies a directory tree, preserving file modes.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}

		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()

		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
		if err != nil {
			return err
		}
		defer out.Close()

		_, err = io.Copy(out, in)
		return err
	})
}
