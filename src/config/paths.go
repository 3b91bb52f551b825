package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

const appDir = "parley"

// DefaultConfigPath returns the XDG location of the config file.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appDir, "config.json")
}

// DefaultDatabasePath returns the XDG location of the conversation store.
// State data lives under XDG_STATE_HOME per the base directory spec.
func DefaultDatabasePath() string {
	return filepath.Join(xdg.StateHome, appDir, "conversations.db")
}

// DefaultLogPath returns the XDG location of the log file.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, appDir, "logs", "parley.log")
}
