package home

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.relay.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".relay")
}

// DataPath returns the registry snapshot path.
func DataPath() string {
	return filepath.Join(BaseDir(), "data.json")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// LogDir returns the log directory.
func LogDir() string {
	return filepath.Join(BaseDir(), "logs")
}

// LogPath returns the daemon log file path.
func LogPath() string {
	return filepath.Join(LogDir(), "relayd.log")
}

// EnsureDir creates the base directory tree with proper permissions.
func EnsureDir() error {
	for _, d := range []string{BaseDir(), LogDir()} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
