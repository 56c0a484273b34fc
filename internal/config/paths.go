package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

const (
	appName        = "hivedrive"
	configFileName = "config.toml"
)

// DefaultConfigDir returns where config.toml lives: $XDG_CONFIG_HOME/hivedrive
// on Linux, ~/Library/Application Support/hivedrive on macOS and
// ~/.config/hivedrive elsewhere. Empty when the home directory is unknown.
func DefaultConfigDir() string {
	return appDir("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns where the token file and publish journal live. On
// macOS it is the same directory as DefaultConfigDir.
func DefaultDataDir() string {
	return appDir("XDG_DATA_HOME", ".local", "share")
}

// DefaultConfigPath is used when neither HIVEDRIVE_CONFIG nor --config is set.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

func appDir(xdgVar string, fallback ...string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return appDirFor(runtime.GOOS, home, os.Getenv(xdgVar), fallback...)
}

// appDirFor resolves the directory for one platform. xdg is only honored on
// Linux; fallback is relative to home.
func appDirFor(goos, home, xdg string, fallback ...string) string {
	switch {
	case goos == platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	case goos == platformLinux && xdg != "":
		return filepath.Join(xdg, appName)
	}

	parts := append([]string{home}, fallback...)

	return filepath.Join(append(parts, appName)...)
}
