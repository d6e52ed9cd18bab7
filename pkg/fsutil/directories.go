// Package fsutil provides utility functions and constants for file system operations.
package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
)

// EnsureDir creates a directory and all necessary parent directories with default permissions if they don't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, DirModeDefault)
}

// EnsureFileDir creates the parent directory of a file path if it doesn't exist.
func EnsureFileDir(filePath string) error {
	dir := filepath.Dir(filePath)
	return EnsureDir(dir)
}

// DirExists reports whether path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// ListDirNames returns the sorted names of the direct child directories of
// path. A missing path yields an empty list.
func ListDirNames(path string) ([]string, error) {
	return listNames(path, true)
}

// ListFileNames returns the sorted names of the regular files directly
// inside path. A missing path yields an empty list.
func ListFileNames(path string) ([]string, error) {
	return listNames(path, false)
}

func listNames(path string, dirs bool) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if dirs && entry.IsDir() {
			names = append(names, entry.Name())
		}
		if !dirs && entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func isWindows() bool { return runtime.GOOS == "windows" }

func isDarwin() bool { return runtime.GOOS == "darwin" }
