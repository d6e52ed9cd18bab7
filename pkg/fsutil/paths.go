package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// AppName names the per-user directories of sitepkg.
const AppName = "sitepkg"

// GetDataDir returns the default application root:
// $XDG_DATA_HOME/sitepkg or ~/.local/share/sitepkg on Linux,
// ~/Library/Application Support/sitepkg on macOS and
// %LOCALAPPDATA%\sitepkg on Windows.
func GetDataDir() (string, error) {
	var base string
	switch {
	case isWindows():
		base = os.Getenv("LOCALAPPDATA")
		if base == "" {
			return "", fmt.Errorf("LOCALAPPDATA environment variable not set")
		}
	case isDarwin():
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, "Library", "Application Support")
	default:
		base = os.Getenv("XDG_DATA_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			base = filepath.Join(home, ".local", "share")
		}
	}
	return filepath.Join(base, AppName), nil
}

// GetConfigDir returns the per-user configuration directory.
func GetConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(dir, AppName), nil
}

// ResolveUnder returns dir unchanged when it is absolute, else joined to root.
func ResolveUnder(root, dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(root, dir)
}
