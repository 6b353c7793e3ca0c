// Package infra implements infrastructure concerns (HTTP clients, storage,
// rule runtime, process checks).
package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode represents the execution mode of the application.
type ExecMode string

const (
	// ExecModeUser keeps state under the invoking user's home.
	ExecModeUser ExecMode = "user"
	// ExecModeSystem keeps state under /var/lib (root).
	ExecModeSystem ExecMode = "system"
)

// ExecModeConfig holds paths based on execution mode.
type ExecModeConfig struct {
	Mode       ExecMode
	DataDir    string // Encrypted state store and key
	ConfigPath string // Default config.yaml location
	PIDPath    string // Running daemon pid file
	LogPath    string
	IsRoot     bool
}

// DetectExecMode determines the execution mode based on effective UID.
func DetectExecMode() *ExecModeConfig {
	if os.Geteuid() == 0 {
		return ModeConfigFor(ExecModeSystem, "/var/lib/webmon", "/etc/webmon")
	}
	home := GetRealUserHome()
	return ModeConfigFor(ExecModeUser,
		filepath.Join(home, ".webmon"),
		filepath.Join(home, ".config", "webmon"))
}

// ModeConfigFor lays out the standard files under dataDir and configDir.
func ModeConfigFor(mode ExecMode, dataDir, configDir string) *ExecModeConfig {
	return &ExecModeConfig{
		Mode:       mode,
		DataDir:    dataDir,
		ConfigPath: filepath.Join(configDir, "config.yaml"),
		PIDPath:    filepath.Join(dataDir, "webmon.pid"),
		LogPath:    filepath.Join(dataDir, "webmon.log"),
		IsRoot:     mode == ExecModeSystem,
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user (non-root)"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
