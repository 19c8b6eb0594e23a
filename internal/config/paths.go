// Package config resolves platform paths and loads the tool settings.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appDirName = "tcu-configtool"

// PlatformProvider abstracts platform-specific operations for testability
type PlatformProvider interface {
	// GetOS returns the operating system name ("windows", "darwin", "linux")
	GetOS() string

	// GetEnv returns the value of an environment variable
	GetEnv(key string) string

	// UserHomeDir returns the current user's home directory
	UserHomeDir() (string, error)
}

// OSPlatformProvider implements PlatformProvider using real OS calls
type OSPlatformProvider struct{}

func (OSPlatformProvider) GetOS() string {
	return runtime.GOOS
}

func (OSPlatformProvider) GetEnv(key string) string {
	return os.Getenv(key)
}

func (OSPlatformProvider) UserHomeDir() (string, error) {
	return os.UserHomeDir()
}

// DefaultPlatform is the default platform provider (can be overridden for tests)
var DefaultPlatform PlatformProvider = OSPlatformProvider{}

// DataDir returns the directory holding the live install, settings, and
// history for the current platform.
func DataDir() string {
	return DataDirWithPlatform(DefaultPlatform)
}

// DataDirWithPlatform allows injecting a custom platform provider for testing
func DataDirWithPlatform(platform PlatformProvider) string {
	switch platform.GetOS() {
	case "windows":
		appData := platform.GetEnv("APPDATA")
		if appData == "" {
			home, _ := platform.UserHomeDir()
			return filepath.Join(home, appDirName)
		}
		return filepath.Join(appData, appDirName)
	case "darwin":
		home, err := platform.UserHomeDir()
		if err != nil {
			return ""
		}
		return filepath.Join(home, "Library", "Application Support", appDirName)
	default: // linux, etc.
		home, err := platform.UserHomeDir()
		if err != nil {
			return ""
		}
		return filepath.Join(home, ".local", "share", appDirName)
	}
}

// CacheDir returns the scratch directory used for staging downloads.
func CacheDir() string {
	return CacheDirWithPlatform(DefaultPlatform)
}

// CacheDirWithPlatform allows injecting a custom platform provider for testing
func CacheDirWithPlatform(platform PlatformProvider) string {
	switch platform.GetOS() {
	case "windows":
		localAppData := platform.GetEnv("LOCALAPPDATA")
		if localAppData == "" {
			home, _ := platform.UserHomeDir()
			return filepath.Join(home, "."+appDirName)
		}
		return filepath.Join(localAppData, appDirName)
	case "darwin":
		home, _ := platform.UserHomeDir()
		return filepath.Join(home, "Library", "Caches", appDirName)
	default:
		home, _ := platform.UserHomeDir()
		return filepath.Join(home, ".cache", appDirName)
	}
}

// InstallDir returns the live install directory the updater swaps into.
func InstallDir() string {
	return filepath.Join(DataDir(), "bundle")
}

// StagingRoot returns the parent directory for per-attempt staging dirs.
// Each attempt uses a fresh name under this root.
func StagingRoot() string {
	return filepath.Join(CacheDir(), "staging")
}

// SettingsPath returns the path of the settings file.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// HistoryDBPath returns the path to the SQLite history database
func HistoryDBPath() string {
	cacheDir := CacheDir()
	_ = os.MkdirAll(cacheDir, 0o755)
	return filepath.Join(cacheDir, "history.db")
}
