package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.sharedwatch/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".sharedwatch", "logs")
	}
	return filepath.Join(home, ".sharedwatch", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "sharedwatch.log")
}

// lockPath returns the rotation lock file for a log path.
func lockPath(logPath string) string {
	return logPath + ".lock"
}
