package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const appName = "agentedit"

// GetConfigDir is ~/.config/agentedit on every platform.
func GetConfigDir() string {
	return filepath.Join(GetHomeDir(), ".config", appName)
}

// GetSettingsFilePath returns the path to settings.toml
func GetSettingsFilePath() string {
	return filepath.Join(GetConfigDir(), "settings.toml")
}

// GetHomeDir returns $HOME (%USERPROFILE% on Windows), or the filesystem
// root when neither is set.
func GetHomeDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	return string(filepath.Separator)
}

// ExpandPath resolves a leading ~ and $VARS, then cleans the result.
func ExpandPath(path string) string {
	switch {
	case path == "":
		return ""
	case path == "~":
		return GetHomeDir()
	case strings.HasPrefix(path, "~/"):
		path = filepath.Join(GetHomeDir(), path[2:])
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// EnsureDir creates path with user-only access.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0700)
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureDataDirPermissions creates dataDir or tightens it to 0700.
func EnsureDataDirPermissions(dataDir string) error {
	info, err := os.Stat(dataDir)
	if errors.Is(err, fs.ErrNotExist) {
		return EnsureDir(dataDir)
	}
	if err != nil {
		return err
	}
	if info.Mode().Perm() == 0700 {
		return nil
	}
	return os.Chmod(dataDir, 0700)
}
