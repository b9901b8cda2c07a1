package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir picks a per-user data directory: $XDG_DATA_HOME/syncq, then
// the macOS or Windows application data folder, then ~/.syncq. Without a home
// directory it returns ./data.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "./data"
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "syncq")
	}
	if isDir(filepath.Join(homeDir, "Library", "Application Support")) {
		return filepath.Join(homeDir, "Library", "Application Support", "syncq")
	}
	if local := os.Getenv("LOCALAPPDATA"); local != "" {
		return filepath.Join(local, "syncq")
	}
	return filepath.Join(homeDir, ".syncq")
}

// ResolveDataDir returns cfg.DataDir, or DefaultDataDir when unset.
func (c Config) ResolveDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return DefaultDataDir()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
