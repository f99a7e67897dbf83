// Package paths provides XDG-compliant path resolution for pgpulse.
//
// Resolution order:
// 1. PGPULSE_HOME (portable root) → $PGPULSE_HOME/{config,data,state}
// 2. XDG env vars → $XDG_*_HOME/pgpulse
// 3. Platform defaults → ~/.config/pgpulse, ~/.local/share/pgpulse, etc.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

const appName = "pgpulse"

// getConfigHome returns the base config home directory.
func getConfigHome() string {
	if home := os.Getenv("PGPULSE_HOME"); home != "" {
		return filepath.Join(home, "config")
	}
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return xdgConfigHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config")
	}
	return ""
}

// getDataHome returns the base data home directory.
func getDataHome() string {
	if home := os.Getenv("PGPULSE_HOME"); home != "" {
		return filepath.Join(home, "data")
	}
	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return xdgDataHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "share")
	}
	return ""
}

// getStateHome returns the base state home directory.
func getStateHome() string {
	if home := os.Getenv("PGPULSE_HOME"); home != "" {
		return filepath.Join(home, "state")
	}
	if xdgStateHome := os.Getenv("XDG_STATE_HOME"); xdgStateHome != "" {
		return xdgStateHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "state")
	}
	return ""
}

func join(base string, elem ...string) string {
	if base == "" {
		return ""
	}
	return filepath.Join(append([]string{base, appName}, elem...)...)
}

// ConfigDir returns the pgpulse configuration directory.
func ConfigDir() string { return join(getConfigHome()) }

// DataDir returns the pgpulse data directory.
func DataDir() string { return join(getDataHome()) }

// StateDir returns the pgpulse state directory.
// Used for PID files and logs.
func StateDir() string { return join(getStateHome()) }

// SessionsDir returns the default directory for recorded session logs.
func SessionsDir() string { return join(getDataHome(), "sessions") }

// LogDir returns the directory for daemon-mode log files.
func LogDir() string { return join(getStateHome(), "logs") }

// PidFilePath returns the path of the daemon PID file for a recording label.
func PidFilePath(label string) string {
	if label == "" {
		label = "default"
	}
	return join(getStateHome(), "daemon-"+label+".pid")
}

// Expand expands a leading tilde in a path.
func Expand(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// EnsureDirs creates all pgpulse directories if they don't exist.
func EnsureDirs() error {
	for _, dir := range []string{ConfigDir(), DataDir(), StateDir(), SessionsDir()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
