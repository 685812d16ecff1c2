package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/errors"
)

// GlobalConfigDir returns the path to the global LEGION configuration
// directory. This is typically ~/.legion on Unix systems.
//
// Returns an error if the home directory cannot be determined.
func GlobalConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, constants.LegionHome), nil
}

// GlobalConfigPath returns the full path to the global configuration file.
// This is typically ~/.legion/config.yaml on Unix systems.
//
// Returns an error if the home directory cannot be determined.
func GlobalConfigPath() (string, error) {
	dir, err := GlobalConfigDir()
	if err != nil {
		return "", fmt.Errorf("get global config path: %w", err)
	}
	return filepath.Join(dir, constants.GlobalConfigName), nil
}

// ProjectConfigPath returns the relative path to the project configuration
// file. This is always .legion.yaml relative to the working directory.
func ProjectConfigPath() string {
	return constants.ProjectConfigName
}

// SessionDir returns the state directory for the named session, typically
// ~/.legion/sessions/<name>. An explicit dir overrides the default layout.
func SessionDir(name, dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	global, err := GlobalConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(global, constants.SessionsDir, name), nil
}

// SessionDirFor resolves the state directory for the named session using
// the configured sessions list. Unlisted names resolve to the default
// layout under ~/.legion/sessions.
func (c *Config) SessionDirFor(name string) (string, error) {
	for _, s := range c.Sessions {
		if s.Name == name {
			return SessionDir(s.Name, s.Dir)
		}
	}
	return SessionDir(name, "")
}

// LogsDir returns the directory where LEGION writes log files, typically
// ~/.legion/logs.
func LogsDir() (string, error) {
	global, err := GlobalConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(global, constants.LogsDir), nil
}

// SnapshotsDir returns the directory where page snapshots are stored,
// typically ~/.legion/snapshots.
func SnapshotsDir() (string, error) {
	global, err := GlobalConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(global, constants.SnapshotsDir), nil
}
