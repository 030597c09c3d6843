// Package session handles per-profile directories under ~/.qchat. Each
// profile keeps its own cache database, logs and credentials, so two
// accounts never share state.
package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.qchat.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".qchat")
}

// Dir returns the profile-specific directory.
func Dir(profile string) string {
	return filepath.Join(BaseDir(), "profiles", profile)
}

// CacheDBPath returns the local cache database path for a profile.
func CacheDBPath(profile string) string {
	return filepath.Join(Dir(profile), "cache.db")
}

// LogDir returns the log directory for a profile.
func LogDir(profile string) string {
	return filepath.Join(Dir(profile), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(profile string) string {
	return filepath.Join(LogDir(profile), "qchatd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// ProfileConfigPath returns the per-profile credentials file.
func ProfileConfigPath(profile string) string {
	return filepath.Join(Dir(profile), "profile.toml")
}

// EnsureDir creates the profile directory tree with owner-only
// permissions.
func EnsureDir(profile string) error {
	for _, d := range []string{Dir(profile), LogDir(profile)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
