package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Settings holds the user-editable configuration of the update pipeline.
type Settings struct {
	// RepoOwner and RepoName identify the release repository
	RepoOwner string `json:"repo_owner"`
	RepoName  string `json:"repo_name"`
	// Token is an optional API token for private or rate-limit-relaxed access
	Token string `json:"token,omitempty"`
	// AllowPrerelease makes pre-release versions eligible update targets
	AllowPrerelease bool `json:"allow_prerelease"`
	// StallTimeoutSecs aborts a download with no traffic for this long
	StallTimeoutSecs int `json:"stall_timeout_secs"`
}

// DefaultSettings are used when no settings file exists yet.
func DefaultSettings() Settings {
	return Settings{
		RepoOwner:        "opentcu",
		RepoName:         "tcu-firmware",
		StallTimeoutSecs: 30,
	}
}

// StallTimeout returns the stall timeout as a duration.
func (s Settings) StallTimeout() time.Duration {
	if s.StallTimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.StallTimeoutSecs) * time.Second
}

// LoadSettings reads the settings file, falling back to defaults when the
// file does not exist. A corrupt file is an error, not a silent reset.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return Settings{}, err
	}

	s := DefaultSettings()
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// SaveSettings writes the settings file, creating its directory if needed.
func SaveSettings(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}
